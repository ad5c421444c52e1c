package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

// stubIdentity はsecretごとのユーザーを返すIdentityProviderのスタブ。
type stubIdentity struct {
	mu    sync.Mutex
	users map[string]*model.User
	calls int
}

func newStubIdentity() *stubIdentity {
	return &stubIdentity{users: make(map[string]*model.User)}
}

func (s *stubIdentity) add(secret string, u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[secret] = u
}

func (s *stubIdentity) CreateAccount(context.Context, string, string, string) (*model.User, error) {
	return nil, &appwrite.Error{Code: http.StatusConflict, Message: "exists"}
}

func (s *stubIdentity) CreateEmailPasswordSession(context.Context, string, string) (*model.ProviderSession, error) {
	return nil, &appwrite.Error{Code: http.StatusUnauthorized, Message: "Invalid credentials"}
}

func (s *stubIdentity) GetCurrentUser(_ context.Context, secret string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if u, ok := s.users[secret]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, &appwrite.Error{Code: http.StatusUnauthorized, Message: "missing scope"}
}

func (s *stubIdentity) DeleteCurrentSession(_ context.Context, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, secret)
	return nil
}

func (s *stubIdentity) CreateVerification(context.Context, string, string) error { return nil }

func (s *stubIdentity) UpdateVerification(context.Context, string, string, string) error {
	return nil
}

func (s *stubIdentity) UpdatePrefs(_ context.Context, secret string, prefs map[string]any) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[secret]
	if !ok {
		return nil, &appwrite.Error{Code: http.StatusUnauthorized}
	}
	u.Prefs = model.ParsePreferences(prefs)
	cp := *u
	return &cp, nil
}

func newTestRegistry(identity *stubIdentity) *session.Registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return session.NewRegistry(func(secret string) *session.Controller {
		return session.NewController(session.Options{Identity: identity, Logger: logger}, secret)
	}, nil)
}

// controllerFor はsecretでCheckAuth済みのControllerを返す。
func controllerFor(identity *stubIdentity, secret string) *session.Controller {
	c := session.NewController(session.Options{
		Identity: identity,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, secret)
	_ = c.CheckAuth(context.Background())
	return c
}

func activeUser() *model.User {
	return &model.User{
		ID:            "user-1",
		Email:         "ana@example.com",
		Name:          "Ana",
		EmailVerified: true,
		Prefs:         model.Preferences{OnboardingCompleted: true, UserType: model.RoleStreamer},
	}
}
