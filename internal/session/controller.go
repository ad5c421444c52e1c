package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/media"
	"github.com/hitoshi/clip/internal/model"
	"github.com/hitoshi/clip/internal/onboarding"
	"github.com/hitoshi/clip/internal/repository"
)

// IdentityProvider はアカウントとセッションを管理する外部サービス。
// ユーザースコープの操作はセッションsecretで呼び出す。
type IdentityProvider interface {
	CreateAccount(ctx context.Context, email, password, name string) (*model.User, error)
	CreateEmailPasswordSession(ctx context.Context, email, password string) (*model.ProviderSession, error)
	GetCurrentUser(ctx context.Context, secret string) (*model.User, error)
	DeleteCurrentSession(ctx context.Context, secret string) error
	CreateVerification(ctx context.Context, secret, returnURL string) error
	UpdateVerification(ctx context.Context, secret, userID, token string) error
	UpdatePrefs(ctx context.Context, secret string, prefs map[string]any) (*model.User, error)
}

// ImageUploader はオンボーディング完了時の画像をまとめて保存する。
type ImageUploader interface {
	UploadAll(ctx context.Context, uploads map[string]*model.Upload) (map[string]string, error)
}

// noImages は画像の保存先が無い環境で使う。添付がある場合は未設定として扱う。
type noImages struct{}

func (noImages) UploadAll(_ context.Context, uploads map[string]*model.Upload) (map[string]string, error) {
	if len(uploads) > 0 {
		return nil, media.ErrNotConfigured
	}
	return map[string]string{}, nil
}

// Options はControllerの依存関係。
type Options struct {
	Identity IdentityProvider
	Profiles repository.ProfileRepository
	Images   ImageUploader
	Observer Observer
	Logger   *slog.Logger
	// VerificationURL は認証メールのリンク先（{origin}/verify-email）。
	VerificationURL string
	Now             func() time.Time
}

// Controller は1訪問分の認証状態を保持する。
// プロバイダー呼び出しはロックの外で行うため、独立した操作は並行して進みうる。
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu              sync.Mutex
	secret          string
	user            *model.User
	loaded          bool
	needsOnboarding bool
	wizard          *onboarding.Wizard
	completing      bool
	closed          bool
	// epoch はログアウトと破棄のたびに進む。古いepochで始まった操作の結果は反映しない。
	epoch      uint64
	lastActive time.Time
	subs       map[int]chan Snapshot
	nextSub    int
	lastState  State
}

// NewController はControllerを生成する。secretは以前の訪問から引き継いだセッションsecret。
// 状態はCheckAuthが完了するまでLOADINGとなる。
func NewController(opts Options, secret string) *Controller {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Images == nil {
		opts.Images = noImages{}
	}
	if opts.Profiles == nil {
		opts.Profiles = repository.NewDocumentRepo(nil, repository.Collections{})
	}
	return &Controller{
		opts:       opts,
		logger:     opts.Logger,
		secret:     secret,
		lastActive: opts.Now(),
		subs:       make(map[int]chan Snapshot),
		lastState:  StateLoading,
	}
}

// Secret は現在のセッションsecretを返す。Cookieへの書き戻しに使う。
func (c *Controller) Secret() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.secret
}

// LastActive は最後に操作された時刻を返す。
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Snapshot は現在の状態を返す。
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// begin は操作の開始時に呼び出し、現在のsecretとepochを返す。
func (c *Controller) begin() (secret string, epoch uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", 0, ErrClosed
	}
	c.lastActive = c.opts.Now()
	return c.secret, c.epoch, nil
}

// commit はepochが変わっていなければfnで状態を更新して購読者に通知する。
// ログアウトや破棄の後に届いた結果は捨て、falseを返す。
func (c *Controller) commit(epoch uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.epoch != epoch {
		c.logger.Debug("dropped stale session update")
		return false
	}
	fn()
	c.publishLocked()
	return true
}

// setUserLocked はユーザー情報を反映し、オンボーディングの要否を再計算する。
func (c *Controller) setUserLocked(u *model.User) {
	c.user = u
	c.loaded = true
	c.needsOnboarding = NeedsOnboarding(u.EmailVerified, u.Prefs)
	if !c.needsOnboarding {
		c.wizard = nil
	}
}

func (c *Controller) clearLocked() {
	c.user = nil
	c.loaded = true
	c.needsOnboarding = false
	c.wizard = nil
}

func (c *Controller) stateLocked() State {
	switch {
	case !c.loaded:
		return StateLoading
	case c.user == nil:
		return StateAnonymous
	case !c.user.EmailVerified:
		return StateAwaitingVerification
	case !c.needsOnboarding:
		return StateActive
	case c.wizard != nil:
		return StateOnboardingInProgress
	}
	return StateVerifiedNeedsOnboarding
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{State: c.stateLocked(), NeedsOnboarding: c.needsOnboarding}
	if c.user != nil {
		s.UserID = c.user.ID
		s.Email = c.user.Email
		s.DisplayName = c.user.Name
		s.EmailVerified = c.user.EmailVerified
		s.Preferences = c.user.Prefs
		s.Role = c.user.Prefs.UserType
	}
	if c.wizard != nil {
		s.Role = c.wizard.Role()
	}
	return s
}

// publishLocked は最新のスナップショットを購読者に送る。
// 受信が追いついていない購読者には古い値を捨てて最新値だけを残す。
func (c *Controller) publishLocked() {
	s := c.snapshotLocked()
	if s.State != c.lastState {
		c.opts.Observer.ObserveTransition(c.lastState, s.State)
		c.logger.Info("session state changed",
			slog.String("from", string(c.lastState)),
			slog.String("to", string(s.State)),
			slog.String("user_id", s.UserID),
		)
		c.lastState = s.State
	}
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Subscribe は状態更新を受け取るチャネルと購読解除関数を返す。
// チャネルには購読直後に現在の状態が1件入る。Close時にチャネルは閉じられる。
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close はControllerを破棄する。購読チャネルを閉じ、以後に届く状態更新は反映しない。
// 複数回呼び出しても安全。
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// authEvent は認証イベントをログとメトリクスに記録する。
func (c *Controller) authEvent(event string, err error) {
	c.opts.Observer.ObserveAuthEvent(event, err)
	if err != nil {
		c.logger.Warn("auth_event",
			slog.String("event", event),
			slog.String("outcome", "failure"),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Info("auth_event",
		slog.String("event", event),
		slog.String("outcome", "success"),
	)
}

// CheckAuth はプロバイダーに現在のセッションを問い合わせて状態を更新する。
// セッションが無い・無効な場合は匿名状態にしてnilを返す。何度呼び出してもよい。
func (c *Controller) CheckAuth(ctx context.Context) error {
	secret, epoch, err := c.begin()
	if err != nil {
		return err
	}

	if secret == "" {
		c.commit(epoch, c.clearLocked)
		return nil
	}

	u, err := c.opts.Identity.GetCurrentUser(ctx, secret)
	if err != nil {
		if appwrite.IsUnauthorized(err) {
			c.logger.Info("provider session is no longer valid")
		} else {
			c.logger.Warn("failed to check current session", slog.String("error", err.Error()))
		}
		c.commit(epoch, func() {
			if appwrite.IsUnauthorized(err) {
				c.secret = ""
			}
			c.clearLocked()
		})
		return nil
	}

	c.commit(epoch, func() { c.setUserLocked(u) })
	return nil
}

// Register はアカウントを作成してそのままログインし、認証メールを送る。
// アカウントまたはセッションの作成に失敗した場合はエラーを返し、状態は変わらない。
// 認証メールの送信失敗はログに残すだけで、ユーザーは再送できる。
func (c *Controller) Register(ctx context.Context, email, password, name string) error {
	_, epoch, err := c.begin()
	if err != nil {
		return err
	}

	u, err := c.opts.Identity.CreateAccount(ctx, email, password, name)
	if err != nil {
		c.authEvent("register", err)
		return fmt.Errorf("failed to create account: %w", err)
	}
	sess, err := c.opts.Identity.CreateEmailPasswordSession(ctx, email, password)
	if err != nil {
		c.authEvent("register", err)
		return fmt.Errorf("failed to create session: %w", err)
	}

	if err := c.opts.Identity.CreateVerification(ctx, sess.Secret, c.opts.VerificationURL); err != nil {
		c.logger.Warn("failed to send verification email",
			slog.String("user_id", u.ID),
			slog.String("error", err.Error()),
		)
	}

	registered := *u
	registered.EmailVerified = false
	c.commit(epoch, func() {
		c.secret = sess.Secret
		c.setUserLocked(&registered)
	})
	c.authEvent("register", nil)
	return nil
}

// Login は既存アカウントでログインし、オンボーディングの要否を再計算する。
func (c *Controller) Login(ctx context.Context, email, password string) error {
	_, epoch, err := c.begin()
	if err != nil {
		return err
	}

	sess, err := c.opts.Identity.CreateEmailPasswordSession(ctx, email, password)
	if err != nil {
		c.authEvent("login", err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	u, err := c.opts.Identity.GetCurrentUser(ctx, sess.Secret)
	if err != nil {
		// セッションは作成済みのためsecretだけ保持し、次回のCheckAuthで回復させる
		c.commit(epoch, func() { c.secret = sess.Secret })
		c.authEvent("login", err)
		return fmt.Errorf("failed to load user: %w", err)
	}

	c.commit(epoch, func() {
		c.secret = sess.Secret
		c.wizard = nil
		c.setUserLocked(u)
	})
	c.authEvent("login", nil)
	return nil
}

// Logout はローカル状態を匿名に戻し、プロバイダー側のセッションを削除する。
// 削除の失敗はログに残すだけで、何度呼び出しても安全。
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	secret := c.secret
	c.secret = ""
	c.epoch++
	c.clearLocked()
	if !c.closed {
		c.lastActive = c.opts.Now()
		c.publishLocked()
	}
	c.mu.Unlock()

	if secret == "" {
		return
	}
	err := c.opts.Identity.DeleteCurrentSession(ctx, secret)
	if err != nil && !appwrite.IsUnauthorized(err) {
		c.authEvent("logout", err)
		return
	}
	c.authEvent("logout", nil)
}

// SendVerification は認証メールを再送する。プロバイダーが拒否した場合はエラーを返す。
func (c *Controller) SendVerification(ctx context.Context) error {
	secret, _, err := c.begin()
	if err != nil {
		return err
	}
	if secret == "" || !c.Snapshot().Authenticated() {
		return ErrNotAuthenticated
	}

	err = c.opts.Identity.CreateVerification(ctx, secret, c.opts.VerificationURL)
	c.authEvent("send_verification", err)
	if err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// CheckEmailVerification はプロバイダーからユーザーを再取得して認証状態を更新し、
// 認証済みかを返す。認証済みになった場合は同じ呼び出しの中でオンボーディングの要否も更新する。
func (c *Controller) CheckEmailVerification(ctx context.Context) (bool, error) {
	secret, epoch, err := c.begin()
	if err != nil {
		return false, err
	}
	if secret == "" {
		return false, ErrNotAuthenticated
	}

	u, err := c.opts.Identity.GetCurrentUser(ctx, secret)
	if err != nil {
		if appwrite.IsUnauthorized(err) {
			c.commit(epoch, func() {
				c.secret = ""
				c.clearLocked()
			})
			return false, ErrNotAuthenticated
		}
		return false, fmt.Errorf("failed to check verification: %w", err)
	}

	c.commit(epoch, func() {
		c.user = u
		c.loaded = true
		if u.EmailVerified {
			c.needsOnboarding = NeedsOnboarding(true, u.Prefs)
			if !c.needsOnboarding {
				c.wizard = nil
			}
		}
	})
	return u.EmailVerified, nil
}

// VerifyEmail は認証リンクのuserIdとsecretでメールアドレスを認証する。
// どちらかが欠けている場合は再試行しても回復しないためErrMalformedVerificationLinkを返す。
// 別のブラウザでリンクを開いた場合はこの訪問にセッションが無いため、状態は更新しない。
func (c *Controller) VerifyEmail(ctx context.Context, userID, token string) (bool, error) {
	if userID == "" || token == "" {
		c.authEvent("verify_email", ErrMalformedVerificationLink)
		return false, ErrMalformedVerificationLink
	}
	secret, _, err := c.begin()
	if err != nil {
		return false, err
	}

	if err := c.opts.Identity.UpdateVerification(ctx, secret, userID, token); err != nil {
		c.authEvent("verify_email", err)
		return false, fmt.Errorf("failed to verify email: %w", err)
	}
	c.authEvent("verify_email", nil)

	if secret == "" {
		return true, nil
	}
	return c.CheckEmailVerification(ctx)
}

// isNotConfigured は保存先未設定によるスキップかを判定する。
func isNotConfigured(err error) bool {
	return errors.Is(err, repository.ErrNotConfigured) || errors.Is(err, media.ErrNotConfigured)
}
