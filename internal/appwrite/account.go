package appwrite

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/clip/internal/model"
)

// userResponse はAppwriteのUserオブジェクト。
type userResponse struct {
	ID                string         `json:"$id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	EmailVerification bool           `json:"emailVerification"`
	Registration      string         `json:"registration"`
	Prefs             map[string]any `json:"prefs"`
}

func (u *userResponse) toModel() *model.User {
	registered, _ := time.Parse(time.RFC3339Nano, u.Registration)
	return &model.User{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		EmailVerified: u.EmailVerification,
		Prefs:         model.ParsePreferences(u.Prefs),
		RegisteredAt:  registered,
	}
}

// sessionResponse はAppwriteのSessionオブジェクト。
type sessionResponse struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Expire string `json:"expire"`
	Secret string `json:"secret"`
}

// CreateAccount はメールアドレスとパスワードでアカウントを作成する。
// POST /account
func (c *Client) CreateAccount(ctx context.Context, email, password, name string) (*model.User, error) {
	var u userResponse
	err := c.do(ctx, request{
		op:     "account.create",
		method: http.MethodPost,
		path:   "/account",
		auth:   authKey,
		body: map[string]string{
			"userId":   UniqueID,
			"email":    email,
			"password": password,
			"name":     name,
		},
	}, &u)
	if err != nil {
		return nil, err
	}
	return u.toModel(), nil
}

// CreateEmailPasswordSession はメールアドレスとパスワードでセッションを作成する。
// APIキー付きで呼び出すことでレスポンスにセッションsecretが含まれる。
// POST /account/sessions/email
func (c *Client) CreateEmailPasswordSession(ctx context.Context, email, password string) (*model.ProviderSession, error) {
	var s sessionResponse
	err := c.do(ctx, request{
		op:     "account.createEmailPasswordSession",
		method: http.MethodPost,
		path:   "/account/sessions/email",
		auth:   authKey,
		body: map[string]string{
			"email":    email,
			"password": password,
		},
	}, &s)
	if err != nil {
		return nil, err
	}
	expires, _ := time.Parse(time.RFC3339Nano, s.Expire)
	return &model.ProviderSession{
		ID:        s.ID,
		UserID:    s.UserID,
		Secret:    s.Secret,
		ExpiresAt: expires,
	}, nil
}

// GetCurrentUser はセッションに紐づくユーザーを取得する。
// GET /account
func (c *Client) GetCurrentUser(ctx context.Context, secret string) (*model.User, error) {
	var u userResponse
	err := c.do(ctx, request{
		op:     "account.get",
		method: http.MethodGet,
		path:   "/account",
		auth:   authSession,
		secret: secret,
	}, &u)
	if err != nil {
		return nil, err
	}
	return u.toModel(), nil
}

// DeleteCurrentSession は現在のセッションを削除する。
// DELETE /account/sessions/current
func (c *Client) DeleteCurrentSession(ctx context.Context, secret string) error {
	return c.do(ctx, request{
		op:     "account.deleteSession",
		method: http.MethodDelete,
		path:   "/account/sessions/current",
		auth:   authSession,
		secret: secret,
	}, nil)
}

// CreateVerification は認証メールの送信を依頼する。
// メール内のリンクは returnURL?userId=...&secret=... の形になる。
// POST /account/verification
func (c *Client) CreateVerification(ctx context.Context, secret, returnURL string) error {
	return c.do(ctx, request{
		op:     "account.createVerification",
		method: http.MethodPost,
		path:   "/account/verification",
		auth:   authSession,
		secret: secret,
		body:   map[string]string{"url": returnURL},
	}, nil)
}

// UpdateVerification は認証リンクのuserIdとsecretでメールアドレスを認証済みにする。
// PUT /account/verification
func (c *Client) UpdateVerification(ctx context.Context, secret, userID, token string) error {
	r := request{
		op:     "account.updateVerification",
		method: http.MethodPut,
		path:   "/account/verification",
		body:   map[string]string{"userId": userID, "secret": token},
	}
	// 別ブラウザでリンクを開いた場合はセッションが無いため認証なしで呼び出す
	if secret != "" {
		r.auth = authSession
		r.secret = secret
	}
	return c.do(ctx, r, nil)
}

// UpdatePrefs はpreference bagを丸ごと置き換える。
// PATCH /account/prefs
func (c *Client) UpdatePrefs(ctx context.Context, secret string, prefs map[string]any) (*model.User, error) {
	var u userResponse
	err := c.do(ctx, request{
		op:     "account.updatePrefs",
		method: http.MethodPatch,
		path:   "/account/prefs",
		auth:   authSession,
		secret: secret,
		body:   map[string]any{"prefs": prefs},
	}, &u)
	if err != nil {
		return nil, err
	}
	return u.toModel(), nil
}
