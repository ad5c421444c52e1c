// Package session は訪問ごとの認証状態とオンボーディングの進行を管理する。
//
// 1回のブラウザ訪問につき1つのControllerがあり、「誰がログインしていて、
// アプリを使う前に何が必要か」の唯一の情報源となる。
package session

import (
	"errors"
	"fmt"

	"github.com/hitoshi/clip/internal/model"
)

// State はControllerの状態。保持しているフィールドから導出する。
type State string

const (
	StateLoading                 State = "LOADING"
	StateAnonymous               State = "ANONYMOUS"
	StateAwaitingVerification    State = "AWAITING_VERIFICATION"
	StateVerifiedNeedsOnboarding State = "VERIFIED_NEEDS_ONBOARDING"
	StateOnboardingInProgress    State = "ONBOARDING_IN_PROGRESS"
	StateActive                  State = "ACTIVE"
)

// エラー定義
var (
	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrEmailNotVerified          = errors.New("email address is not verified")
	ErrOnboardingRequired        = errors.New("onboarding is required")
	ErrOnboardingNotRequired     = errors.New("onboarding is not required")
	ErrOnboardingInFlight        = errors.New("onboarding completion is already in progress")
	ErrNoRoleSelected            = errors.New("no onboarding role selected")
	ErrInvalidRole               = errors.New("invalid role")
	ErrMalformedVerificationLink = errors.New("verification link is missing userId or secret")
	ErrClosed                    = errors.New("session controller is closed")
)

// InvalidRoleError は未知の役割が指定されたことを表す。errors.Is(err, ErrInvalidRole) が成り立つ。
type InvalidRoleError struct {
	Role model.Role
}

func (e *InvalidRoleError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidRole, e.Role)
}

func (e *InvalidRoleError) Is(target error) bool {
	return target == ErrInvalidRole
}

// Snapshot はある時点のControllerの状態。値として安全に受け渡せる。
type Snapshot struct {
	State           State
	UserID          string
	Email           string
	DisplayName     string
	EmailVerified   bool
	NeedsOnboarding bool
	Preferences     model.Preferences
	// Role はウィザードで選択中の役割。オンボーディング済みの場合は保存済みの役割。
	Role model.Role
}

// Authenticated はユーザーがログインしているかを返す。
func (s Snapshot) Authenticated() bool {
	return s.UserID != ""
}

// NeedsOnboarding はオンボーディングが必要かを計算する。
// メールアドレス未認証のユーザーは常にfalseとなり、オンボーディングには進まない。
func NeedsOnboarding(emailVerified bool, prefs model.Preferences) bool {
	return emailVerified && !prefs.OnboardingCompleted
}

// 遷移先
const (
	RouteLoading    = "/loading"
	RouteLogin      = "/login"
	RouteVerify     = "/verify-email/pending"
	RouteOnboarding = "/onboarding"
	RouteDashboard  = "/dashboard"
)

// Route は状態に応じた遷移先を返す。
// 未認証メールのユーザーは常に認証待ち画面へ、オンボーディング未完了のユーザーは
// 常にウィザードへ送られ、メイン画面には到達しない。
func Route(s Snapshot) string {
	switch s.State {
	case StateLoading:
		return RouteLoading
	case StateAnonymous:
		return RouteLogin
	case StateAwaitingVerification:
		return RouteVerify
	case StateVerifiedNeedsOnboarding:
		return RouteOnboarding
	case StateOnboardingInProgress:
		return RouteOnboarding + "/" + string(s.Role)
	case StateActive:
		return RouteDashboard
	}
	return RouteLogin
}

// Area はアクセス制御の単位となる画面・APIのまとまり。
type Area int

const (
	// AreaVerification はログイン済みなら誰でも使える認証メール関連の操作。
	AreaVerification Area = iota
	// AreaOnboarding はメール認証済みかつオンボーディング未完了のユーザー向け。
	AreaOnboarding
	// AreaApp はメインアプリケーション。ACTIVEのみ。
	AreaApp
)

// Allow はスナップショットの状態でareaに入れるかを判定する。
// 入れない場合は理由を表すエラーを返す。
func Allow(s Snapshot, area Area) error {
	if s.State == StateLoading || s.State == StateAnonymous {
		return ErrNotAuthenticated
	}
	if area == AreaVerification {
		return nil
	}
	if !s.EmailVerified {
		return ErrEmailNotVerified
	}
	switch area {
	case AreaOnboarding:
		if !s.NeedsOnboarding {
			return ErrOnboardingNotRequired
		}
	case AreaApp:
		if s.NeedsOnboarding {
			return ErrOnboardingRequired
		}
	}
	return nil
}
