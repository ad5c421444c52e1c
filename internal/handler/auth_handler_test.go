package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

func TestAuthHandler_Me_Anonymous(t *testing.T) {
	ts := newTestServer(t, newFakeIdentity(), serverOptions{})

	var s sessionResponse
	decodeBody(t, ts.get("/auth/me"), http.StatusOK, &s)

	if s.State != string(session.StateAnonymous) {
		t.Errorf("state = %q, want %q", s.State, session.StateAnonymous)
	}
	if s.Route != session.RouteLogin {
		t.Errorf("route = %q, want %q", s.Route, session.RouteLogin)
	}
	if s.Authenticated || s.User != nil {
		t.Errorf("anonymous visit should not carry a user: %+v", s)
	}
	if ts.cookie("clip_visit") == "" {
		t.Error("visit cookie should be issued")
	}
}

func TestAuthHandler_Register(t *testing.T) {
	identity := newFakeIdentity()
	ts := newTestServer(t, identity, serverOptions{})

	resp := ts.postJSON("/auth/register", map[string]string{
		"email":    "ana@example.com",
		"password": "hunter22hunter",
		"name":     "Ana",
	})
	var s sessionResponse
	decodeBody(t, resp, http.StatusCreated, &s)

	if s.State != string(session.StateAwaitingVerification) {
		t.Errorf("state = %q, want %q", s.State, session.StateAwaitingVerification)
	}
	if s.Route != session.RouteVerify {
		t.Errorf("route = %q, want %q", s.Route, session.RouteVerify)
	}
	if s.NeedsOnboarding {
		t.Error("unverified user must not need onboarding")
	}
	if identity.verificationsSent != 1 {
		t.Errorf("verificationsSent = %d, want 1", identity.verificationsSent)
	}
	if ts.cookie("clip_session") == "" {
		t.Error("provider secret cookie should be set after register")
	}
}

func TestAuthHandler_Register_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing password",
			body:       map[string]string{"email": "ana@example.com"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "duplicate account",
			body:       map[string]string{"email": "taken@example.com", "password": "hunter22hunter"},
			wantStatus: http.StatusConflict,
			wantCode:   "PROVIDER_REJECTED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := newFakeIdentity()
			identity.addUser("taken@example.com", "pw", false, model.Preferences{})
			ts := newTestServer(t, identity, serverOptions{})

			var body middleware.ErrorResponseBody
			decodeBody(t, ts.postJSON("/auth/register", tt.body), tt.wantStatus, &body)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	tests := []struct {
		name           string
		verified       bool
		prefs          model.Preferences
		wantState      session.State
		wantRoute      string
		wantOnboarding bool
	}{
		{
			name:      "unverified",
			wantState: session.StateAwaitingVerification,
			wantRoute: session.RouteVerify,
		},
		{
			name:           "verified without onboarding",
			verified:       true,
			wantState:      session.StateVerifiedNeedsOnboarding,
			wantRoute:      session.RouteOnboarding,
			wantOnboarding: true,
		},
		{
			name:      "active",
			verified:  true,
			prefs:     activePrefs(model.RoleStreamer),
			wantState: session.StateActive,
			wantRoute: session.RouteDashboard,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := newFakeIdentity()
			identity.addUser("ana@example.com", "pw", tt.verified, tt.prefs)
			ts := newTestServer(t, identity, serverOptions{})

			s := ts.login("ana@example.com", "pw")
			if s.State != string(tt.wantState) {
				t.Errorf("state = %q, want %q", s.State, tt.wantState)
			}
			if s.Route != tt.wantRoute {
				t.Errorf("route = %q, want %q", s.Route, tt.wantRoute)
			}
			if s.NeedsOnboarding != tt.wantOnboarding {
				t.Errorf("needsOnboarding = %v, want %v", s.NeedsOnboarding, tt.wantOnboarding)
			}
		})
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	identity := newFakeIdentity()
	identity.addUser("ana@example.com", "pw", true, model.Preferences{})
	ts := newTestServer(t, identity, serverOptions{})

	var body middleware.ErrorResponseBody
	resp := ts.postJSON("/auth/login", map[string]string{"email": "ana@example.com", "password": "wrong"})
	decodeBody(t, resp, http.StatusUnauthorized, &body)
	if body.Message != "Invalid credentials." {
		t.Errorf("message = %q, want provider message", body.Message)
	}

	var s sessionResponse
	decodeBody(t, ts.get("/auth/me"), http.StatusOK, &s)
	if s.Authenticated {
		t.Error("failed login must leave the visit anonymous")
	}
}

func TestAuthHandler_Logout_ClearsSecret(t *testing.T) {
	identity := newFakeIdentity()
	identity.addUser("ana@example.com", "pw", true, activePrefs(model.RoleClipper))
	ts := newTestServer(t, identity, serverOptions{})
	ts.login("ana@example.com", "pw")

	var s sessionResponse
	decodeBody(t, ts.postJSON("/auth/logout", nil), http.StatusOK, &s)
	if s.Authenticated || s.State != string(session.StateAnonymous) {
		t.Errorf("after logout: %+v", s)
	}
	if got := ts.cookie("clip_session"); got != "" {
		t.Errorf("secret cookie = %q, want removed", got)
	}

	// 2回目も成功する
	decodeBody(t, ts.postJSON("/auth/logout", nil), http.StatusOK, nil)
}

func TestAuthHandler_SecretSurvivesNewVisit(t *testing.T) {
	identity := newFakeIdentity()
	identity.addUser("ana@example.com", "pw", true, activePrefs(model.RoleClipper))
	ts := newTestServer(t, identity, serverOptions{})
	ts.login("ana@example.com", "pw")

	// サーバー再起動などで訪問が失われた場合もsecretから復元される
	ts.registry.CloseAll()

	var s sessionResponse
	decodeBody(t, ts.get("/auth/me"), http.StatusOK, &s)
	if s.State != string(session.StateActive) {
		t.Errorf("state = %q, want %q", s.State, session.StateActive)
	}
}

func TestAuthHandler_Verification(t *testing.T) {
	identity := newFakeIdentity()
	identity.addUser("ana@example.com", "pw", false, model.Preferences{})
	ts := newTestServer(t, identity, serverOptions{})
	ts.login("ana@example.com", "pw")

	resp := ts.postJSON("/auth/verification", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("resend status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	var v verificationResponse
	decodeBody(t, ts.postJSON("/auth/verification/check", nil), http.StatusOK, &v)
	if v.Verified {
		t.Error("verified = true before verifying")
	}

	identity.verify("ana@example.com")
	decodeBody(t, ts.postJSON("/auth/verification/check", nil), http.StatusOK, &v)
	if !v.Verified {
		t.Error("verified = false after verifying")
	}
	if v.Session.Route != session.RouteOnboarding || !v.Session.NeedsOnboarding {
		t.Errorf("session after verification = %+v, want onboarding", v.Session)
	}
}

func TestAuthHandler_Verification_Anonymous(t *testing.T) {
	ts := newTestServer(t, newFakeIdentity(), serverOptions{})

	var body middleware.ErrorResponseBody
	decodeBody(t, ts.postJSON("/auth/verification", nil), http.StatusUnauthorized, &body)
	if body.Route != session.RouteLogin {
		t.Errorf("route = %q, want %q", body.Route, session.RouteLogin)
	}
}

func TestAuthHandler_VerifyEmail(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{name: "missing secret", query: "?userId=user-1", wantStatus: http.StatusBadRequest},
		{name: "missing userId", query: "?secret=valid-token", wantStatus: http.StatusBadRequest},
		{name: "invalid token", query: "?userId=user-1&secret=expired", wantStatus: http.StatusUnauthorized},
		{name: "valid link", query: "?userId=user-1&secret=valid-token", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := newFakeIdentity()
			identity.addUser("ana@example.com", "pw", false, model.Preferences{})
			ts := newTestServer(t, identity, serverOptions{})

			resp := ts.get("/verify-email" + tt.query)
			if tt.wantStatus != http.StatusOK {
				decodeBody(t, resp, tt.wantStatus, nil)
				return
			}
			var v verificationResponse
			decodeBody(t, resp, http.StatusOK, &v)
			// 別ブラウザで開いた場合はセッションが無いので状態は匿名のまま
			if !v.Verified || v.Session.Authenticated {
				t.Errorf("response = %+v, want verified anonymous", v)
			}
		})
	}
}

func TestAuthHandler_Events(t *testing.T) {
	identity := newFakeIdentity()
	identity.addUser("ana@example.com", "pw", true, activePrefs(model.RoleClipper))
	ts := newTestServer(t, identity, serverOptions{})
	// 訪問Cookieを発行しておく
	ts.get("/auth/me").Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/auth/events", nil)
	resp, err := ts.client.Do(req)
	if err != nil {
		t.Fatalf("GET /auth/events error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	events := make(chan sessionResponse, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var s sessionResponse
				if json.Unmarshal([]byte(data), &s) == nil {
					events <- s
				}
			}
		}
		close(events)
	}()

	first := <-events
	if first.State != string(session.StateAnonymous) {
		t.Fatalf("first event state = %q, want %q", first.State, session.StateAnonymous)
	}

	ts.login("ana@example.com", "pw")

	select {
	case s := <-events:
		if s.State != string(session.StateActive) {
			t.Errorf("event after login state = %q, want %q", s.State, session.StateActive)
		}
	case <-ctx.Done():
		t.Fatal("no event after login")
	}

	// 訪問を破棄するとストリームが閉じる
	ts.registry.CloseAll()
	for range events {
	}
}
