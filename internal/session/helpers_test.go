package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/model"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeIdentity はメモリ上で動くIdentityProviderのテスト実装。
// *Fn フィールドを設定すると該当操作の振る舞いを差し替えられる。
type fakeIdentity struct {
	mu       sync.Mutex
	users    map[string]*fakeAccount // email -> account
	sessions map[string]string       // secret -> email
	seq      int

	createAccountFn      func(email string) error
	createVerificationFn func() error
	getCurrentUserFn     func(secret string) (*model.User, error)
	updatePrefsFn        func(prefs map[string]any) error
	deleteSessionFn      func(secret string) error

	verificationsSent int
	prefsUpdates      int
	deletedSessions   int
}

type fakeAccount struct {
	user     model.User
	password string
	prefs    map[string]any
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		users:    make(map[string]*fakeAccount),
		sessions: make(map[string]string),
	}
}

func unauthorized() error {
	return &appwrite.Error{Code: http.StatusUnauthorized, Type: "general_unauthorized_scope", Message: "missing scope"}
}

// addUser はテスト用にアカウントを登録する。
func (f *fakeIdentity) addUser(email, password string, verified bool, prefs map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	if prefs == nil {
		prefs = map[string]any{}
	}
	f.users[email] = &fakeAccount{
		user:     model.User{ID: fmt.Sprintf("user-%d", f.seq), Email: email, Name: "Test", EmailVerified: verified},
		password: password,
		prefs:    prefs,
	}
}

// verify はプロバイダー側でメール認証が完了したことにする。
func (f *fakeIdentity) verify(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[email].user.EmailVerified = true
}

func (f *fakeIdentity) userLocked(a *fakeAccount) *model.User {
	u := a.user
	u.Prefs = model.ParsePreferences(a.prefs)
	return &u
}

func (f *fakeIdentity) CreateAccount(_ context.Context, email, password, name string) (*model.User, error) {
	if f.createAccountFn != nil {
		if err := f.createAccountFn(email); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[email]; exists {
		return nil, &appwrite.Error{Code: http.StatusConflict, Type: "user_already_exists", Message: "A user with the same email already exists."}
	}
	f.seq++
	a := &fakeAccount{
		user:     model.User{ID: fmt.Sprintf("user-%d", f.seq), Email: email, Name: name},
		password: password,
		prefs:    map[string]any{},
	}
	f.users[email] = a
	return f.userLocked(a), nil
}

func (f *fakeIdentity) CreateEmailPasswordSession(_ context.Context, email, password string) (*model.ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.users[email]
	if !ok || a.password != password {
		return nil, &appwrite.Error{Code: http.StatusUnauthorized, Type: "user_invalid_credentials", Message: "Invalid credentials."}
	}
	f.seq++
	secret := fmt.Sprintf("secret-%d", f.seq)
	f.sessions[secret] = email
	return &model.ProviderSession{ID: fmt.Sprintf("sess-%d", f.seq), UserID: a.user.ID, Secret: secret}, nil
}

func (f *fakeIdentity) GetCurrentUser(_ context.Context, secret string) (*model.User, error) {
	if f.getCurrentUserFn != nil {
		return f.getCurrentUserFn(secret)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.sessions[secret]
	if !ok {
		return nil, unauthorized()
	}
	return f.userLocked(f.users[email]), nil
}

func (f *fakeIdentity) DeleteCurrentSession(_ context.Context, secret string) error {
	if f.deleteSessionFn != nil {
		if err := f.deleteSessionFn(secret); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[secret]; !ok {
		return unauthorized()
	}
	delete(f.sessions, secret)
	f.deletedSessions++
	return nil
}

func (f *fakeIdentity) CreateVerification(_ context.Context, secret, _ string) error {
	if f.createVerificationFn != nil {
		if err := f.createVerificationFn(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[secret]; !ok {
		return unauthorized()
	}
	f.verificationsSent++
	return nil
}

func (f *fakeIdentity) UpdateVerification(_ context.Context, _, userID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != "valid-token" {
		return &appwrite.Error{Code: http.StatusUnauthorized, Type: "user_invalid_token", Message: "Invalid token."}
	}
	for _, a := range f.users {
		if a.user.ID == userID {
			a.user.EmailVerified = true
			return nil
		}
	}
	return &appwrite.Error{Code: http.StatusNotFound, Type: "user_not_found", Message: "User not found."}
}

func (f *fakeIdentity) UpdatePrefs(_ context.Context, secret string, prefs map[string]any) (*model.User, error) {
	if f.updatePrefsFn != nil {
		if err := f.updatePrefsFn(prefs); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.sessions[secret]
	if !ok {
		return nil, unauthorized()
	}
	a := f.users[email]
	a.prefs = prefs
	f.prefsUpdates++
	return f.userLocked(a), nil
}

// mockProfiles はProfileRepositoryのモック。
type mockProfiles struct {
	createFn func(ctx context.Context, p *model.Profile) (string, error)

	mu    sync.Mutex
	saved []*model.Profile
}

func (m *mockProfiles) CreateProfile(ctx context.Context, p *model.Profile) (string, error) {
	if m.createFn != nil {
		id, err := m.createFn(ctx, p)
		if err != nil {
			return "", err
		}
		m.mu.Lock()
		m.saved = append(m.saved, p)
		m.mu.Unlock()
		return id, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, p)
	return fmt.Sprintf("profile-%d", len(m.saved)), nil
}

// mockImages はImageUploaderのモック。
type mockImages struct {
	uploadAllFn func(ctx context.Context, uploads map[string]*model.Upload) (map[string]string, error)
}

func (m *mockImages) UploadAll(ctx context.Context, uploads map[string]*model.Upload) (map[string]string, error) {
	if m.uploadAllFn != nil {
		return m.uploadAllFn(ctx, uploads)
	}
	urls := make(map[string]string, len(uploads))
	for k := range uploads {
		urls[k] = "https://files.example/" + k
	}
	return urls, nil
}

// recordingObserver はObserverの呼び出しを記録する。
type recordingObserver struct {
	mu          sync.Mutex
	events      []string
	transitions []string
	completed   []model.Role
	skipped     []string
	visits      int
}

func (o *recordingObserver) ObserveAuthEvent(event string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	o.events = append(o.events, event+":"+outcome)
}

func (o *recordingObserver) ObserveTransition(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, string(from)+"->"+string(to))
}

func (o *recordingObserver) ObserveOnboardingCompleted(role model.Role) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, role)
}

func (o *recordingObserver) ObservePersistenceSkipped(kind string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped = append(o.skipped, kind)
}

func (o *recordingObserver) SetActiveVisits(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visits = n
}

type testEnv struct {
	identity *fakeIdentity
	profiles *mockProfiles
	images   *mockImages
	observer *recordingObserver
	logs     *bytes.Buffer
}

func newTestEnv() *testEnv {
	return &testEnv{
		identity: newFakeIdentity(),
		profiles: &mockProfiles{},
		images:   &mockImages{},
		observer: &recordingObserver{},
		logs:     &bytes.Buffer{},
	}
}

func (e *testEnv) options() Options {
	return Options{
		Identity:        e.identity,
		Profiles:        e.profiles,
		Images:          e.images,
		Observer:        e.observer,
		Logger:          newTestLogger(e.logs),
		VerificationURL: "https://clip.example/verify-email",
		Now:             func() time.Time { return testNow },
	}
}

// newController はCheckAuth済みのControllerを生成する。
func (e *testEnv) newController(secret string) *Controller {
	c := NewController(e.options(), secret)
	c.CheckAuth(context.Background())
	return c
}

// loggedIn はログイン済みのControllerを生成する。
func (e *testEnv) loggedIn(email string, verified bool, prefs map[string]any) *Controller {
	e.identity.addUser(email, "password123", verified, prefs)
	c := e.newController("")
	if err := c.Login(context.Background(), email, "password123"); err != nil {
		panic(err)
	}
	return c
}
