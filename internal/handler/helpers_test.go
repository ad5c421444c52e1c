package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/campaign"
	"github.com/hitoshi/clip/internal/launch"
	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/session"
)

// fakeIdentity はメモリ上で動くIdentityProviderのテスト実装。
type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount // email -> account
	sessions map[string]string       // secret -> email
	seq      int

	verificationsSent int
	getCurrentUser    int
}

type fakeAccount struct {
	user     model.User
	password string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		accounts: make(map[string]*fakeAccount),
		sessions: make(map[string]string),
	}
}

func (f *fakeIdentity) addUser(email, password string, verified bool, prefs model.Preferences) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.accounts[email] = &fakeAccount{
		user: model.User{
			ID:            fmt.Sprintf("user-%d", f.seq),
			Email:         email,
			Name:          "Test",
			EmailVerified: verified,
			Prefs:         prefs,
		},
		password: password,
	}
}

func (f *fakeIdentity) verify(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email].user.EmailVerified = true
}

func (f *fakeIdentity) CreateAccount(_ context.Context, email, password, name string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[email]; ok {
		return nil, &appwrite.Error{Code: http.StatusConflict, Type: "user_already_exists", Message: "A user with the same email already exists."}
	}
	f.seq++
	a := &fakeAccount{
		user:     model.User{ID: fmt.Sprintf("user-%d", f.seq), Email: email, Name: name},
		password: password,
	}
	f.accounts[email] = a
	cp := a.user
	return &cp, nil
}

func (f *fakeIdentity) CreateEmailPasswordSession(_ context.Context, email, password string) (*model.ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[email]
	if !ok || a.password != password {
		return nil, &appwrite.Error{Code: http.StatusUnauthorized, Type: "user_invalid_credentials", Message: "Invalid credentials."}
	}
	f.seq++
	secret := fmt.Sprintf("secret-%d", f.seq)
	f.sessions[secret] = email
	return &model.ProviderSession{ID: secret, UserID: a.user.ID, Secret: secret}, nil
}

func (f *fakeIdentity) currentUserCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCurrentUser
}

func (f *fakeIdentity) GetCurrentUser(_ context.Context, secret string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCurrentUser++
	email, ok := f.sessions[secret]
	if !ok {
		return nil, &appwrite.Error{Code: http.StatusUnauthorized, Type: "general_unauthorized_scope", Message: "missing scope"}
	}
	cp := f.accounts[email].user
	return &cp, nil
}

func (f *fakeIdentity) DeleteCurrentSession(_ context.Context, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, secret)
	return nil
}

func (f *fakeIdentity) CreateVerification(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verificationsSent++
	return nil
}

func (f *fakeIdentity) UpdateVerification(_ context.Context, _, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "valid-token" {
		return &appwrite.Error{Code: http.StatusUnauthorized, Type: "user_invalid_token", Message: "Invalid token passed in the request."}
	}
	for _, a := range f.accounts {
		if a.user.ID == userID {
			a.user.EmailVerified = true
			return nil
		}
	}
	return &appwrite.Error{Code: http.StatusNotFound, Message: "User not found"}
}

func (f *fakeIdentity) UpdatePrefs(_ context.Context, secret string, prefs map[string]any) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.sessions[secret]
	if !ok {
		return nil, &appwrite.Error{Code: http.StatusUnauthorized, Message: "missing scope"}
	}
	a := f.accounts[email]
	a.user.Prefs = model.ParsePreferences(prefs)
	cp := a.user
	return &cp, nil
}

// mockLaunchCreator はLaunchCreatorのモック。
type mockLaunchCreator struct {
	createFn func(ctx context.Context, creatorID string, input model.LaunchEventInput) (*launch.Result, []string, error)
}

func (m *mockLaunchCreator) Create(ctx context.Context, creatorID string, input model.LaunchEventInput) (*launch.Result, []string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, creatorID, input)
	}
	return nil, nil, errors.New("not implemented")
}

// mockCampaignCreator はCampaignCreatorのモック。
type mockCampaignCreator struct {
	createFn func(ctx context.Context, creatorID string, input model.RewardsCampaignInput) (*campaign.Result, []string, error)
}

func (m *mockCampaignCreator) Create(ctx context.Context, creatorID string, input model.RewardsCampaignInput) (*campaign.Result, []string, error) {
	if m.createFn != nil {
		return m.createFn(ctx, creatorID, input)
	}
	return nil, nil, errors.New("not implemented")
}

// testServer はルーター全体を起動し、Cookieを保持するクライアントで叩く。
type testServer struct {
	t        *testing.T
	srv      *httptest.Server
	client   *http.Client
	identity *fakeIdentity
	registry *session.Registry
	limiter  *middleware.RateLimiter
}

type serverOptions struct {
	launches  LaunchCreator
	campaigns CampaignCreator
	// generalPerMin は0ならテストで制限に掛からない値を使う。
	generalPerMin int
}

func newTestServer(t *testing.T, identity *fakeIdentity, opts serverOptions) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := session.NewRegistry(func(secret string) *session.Controller {
		return session.NewController(session.Options{
			Identity:        identity,
			Logger:          logger,
			VerificationURL: "http://localhost:3000/verify-email",
		}, secret)
	}, nil)
	if opts.generalPerMin == 0 {
		opts.generalPerMin = 6000
	}
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(opts.generalPerMin, 6000))

	if opts.launches == nil {
		opts.launches = &mockLaunchCreator{}
	}
	if opts.campaigns == nil {
		opts.campaigns = &mockCampaignCreator{}
	}
	router := NewRouter(&RouterDeps{
		Logger:        logger,
		Visits:        registry,
		VisitConfig:   middleware.VisitConfig{SessionMaxAge: 3600},
		RateLimiter:   rl,
		Launches:      opts.launches,
		Campaigns:     opts.campaigns,
		MaxUploadBody: 1 << 20,
	})
	srv := httptest.NewServer(router)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	ts := &testServer{
		t:        t,
		srv:      srv,
		client:   &http.Client{Jar: jar},
		identity: identity,
		registry: registry,
		limiter:  rl,
	}
	t.Cleanup(func() {
		srv.Close()
		registry.CloseAll()
		rl.Stop()
	})
	return ts
}

func (ts *testServer) cookie(name string) string {
	u, _ := url.Parse(ts.srv.URL)
	for _, c := range ts.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// do はリクエストを送る。状態変更メソッドではCSRFトークンを付与する。
func (ts *testServer) do(method, path, contentType string, body io.Reader) *http.Response {
	ts.t.Helper()
	if method != http.MethodGet && ts.cookie("csrf_token") == "" {
		ts.get("/api/csrf-token").Body.Close()
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, body)
	if err != nil {
		ts.t.Fatalf("http.NewRequest() error = %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if method != http.MethodGet {
		req.Header.Set("X-CSRF-Token", ts.cookie("csrf_token"))
	}
	resp, err := ts.client.Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s error = %v", method, path, err)
	}
	return resp
}

func (ts *testServer) get(path string) *http.Response {
	return ts.do(http.MethodGet, path, "", nil)
}

func (ts *testServer) postJSON(path string, v any) *http.Response {
	ts.t.Helper()
	var body bytes.Buffer
	if v != nil {
		if err := json.NewEncoder(&body).Encode(v); err != nil {
			ts.t.Fatalf("json.Encode() error = %v", err)
		}
	}
	return ts.do(http.MethodPost, path, "application/json", &body)
}

// login はアカウントでログインし、状態を返す。
func (ts *testServer) login(email, password string) sessionResponse {
	ts.t.Helper()
	resp := ts.postJSON("/auth/login", map[string]string{"email": email, "password": password})
	var s sessionResponse
	decodeBody(ts.t, resp, http.StatusOK, &s)
	return s
}

// decodeBody はステータスコードを確認してJSONボディをデコードする。
func decodeBody(t *testing.T, resp *http.Response, wantStatus int, v any) {
	t.Helper()
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		t.Fatalf("status = %d, want %d (body: %s)", resp.StatusCode, wantStatus, data)
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("json.Unmarshal() error = %v (body: %s)", err, data)
	}
}

func activePrefs(role model.Role) model.Preferences {
	return model.Preferences{OnboardingCompleted: true, UserType: role}
}
