package session

import (
	"errors"
	"testing"

	"github.com/hitoshi/clip/internal/model"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		snap Snapshot
		want string
	}{
		{Snapshot{State: StateLoading}, RouteLoading},
		{Snapshot{State: StateAnonymous}, RouteLogin},
		{Snapshot{State: StateAwaitingVerification}, RouteVerify},
		{Snapshot{State: StateVerifiedNeedsOnboarding}, RouteOnboarding},
		{Snapshot{State: StateOnboardingInProgress, Role: model.RoleAgency}, "/onboarding/agency"},
		{Snapshot{State: StateActive}, RouteDashboard},
		{Snapshot{State: "BOGUS"}, RouteLogin},
	}
	for _, tt := range tests {
		t.Run(string(tt.snap.State), func(t *testing.T) {
			if got := Route(tt.snap); got != tt.want {
				t.Errorf("Route = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAllow(t *testing.T) {
	anon := Snapshot{State: StateAnonymous}
	unverified := Snapshot{State: StateAwaitingVerification, UserID: "u"}
	needs := Snapshot{State: StateVerifiedNeedsOnboarding, UserID: "u", EmailVerified: true, NeedsOnboarding: true}
	active := Snapshot{State: StateActive, UserID: "u", EmailVerified: true}

	tests := []struct {
		name string
		snap Snapshot
		area Area
		want error
	}{
		{"匿名は認証メール操作不可", anon, AreaVerification, ErrNotAuthenticated},
		{"未認証は認証メール操作可", unverified, AreaVerification, nil},
		{"未認証はオンボーディング不可", unverified, AreaOnboarding, ErrEmailNotVerified},
		{"未認証はアプリ不可", unverified, AreaApp, ErrEmailNotVerified},
		{"要オンボーディングはアプリ不可", needs, AreaApp, ErrOnboardingRequired},
		{"要オンボーディングはウィザード可", needs, AreaOnboarding, nil},
		{"ACTIVEはウィザード不可", active, AreaOnboarding, ErrOnboardingNotRequired},
		{"ACTIVEはアプリ可", active, AreaApp, nil},
		{"LOADINGはアプリ不可", Snapshot{State: StateLoading}, AreaApp, ErrNotAuthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Allow(tt.snap, tt.area); !errors.Is(err, tt.want) {
				t.Errorf("Allow = %v, want %v", err, tt.want)
			}
		})
	}
}
