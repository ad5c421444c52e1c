// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/session"
)

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	// KeepAlive はSSEのコメント行を送る間隔。0の場合は30秒。
	KeepAlive time.Duration
}

// AuthHandler は登録・ログイン・メール認証のHTTPハンドラー。
// 訪問ごとのControllerをリクエストコンテキストから受け取って操作する。
type AuthHandler struct {
	config AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(config AuthHandlerConfig) *AuthHandler {
	if config.KeepAlive <= 0 {
		config.KeepAlive = 30 * time.Second
	}
	return &AuthHandler{config: config}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register はアカウントを作成してログインする。
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeInvalidRequest(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if err := c.Register(r.Context(), req.Email, req.Password, req.Name); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(c.Snapshot()))
}

// Login は既存アカウントでログインする。
// POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w, http.StatusBadRequest, "body must be JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeInvalidRequest(w, http.StatusBadRequest, "email and password are required")
		return
	}

	if err := c.Login(r.Context(), req.Email, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(c.Snapshot()))
}

// Logout はログアウトする。何度呼び出しても成功する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	c.Logout(r.Context())
	writeJSON(w, http.StatusOK, toSessionResponse(c.Snapshot()))
}

// Me は訪問の状態と遷移先を返す。匿名でも200を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(c.Snapshot()))
}

// Events は状態の変化をServer-Sent Eventsで配信する。
// 購読直後に現在の状態を1件送り、以降は変化のたびに最新の状態を送る。
// 訪問が破棄されると接続を閉じる。
// GET /auth/events
func (h *AuthHandler) Events(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}

	rc := http.NewResponseController(w)
	// サーバーのWriteTimeoutで長時間接続が切られないようにする
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		slog.Warn("failed to clear write deadline", slog.String("error", err.Error()))
	}

	updates, cancel := c.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(s session.Snapshot) bool {
		if err := writeEvent(w, "session", toSessionResponse(s)); err != nil {
			return false
		}
		return rc.Flush() == nil
	}
	if rc.Flush() != nil {
		return
	}

	ticker := time.NewTicker(h.config.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, open := <-updates:
			if !open {
				return
			}
			if !send(s) {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if rc.Flush() != nil {
				return
			}
		}
	}
}

// SendVerification は認証メールを再送する。
// POST /auth/verification
func (h *AuthHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	if err := c.SendVerification(r.Context()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type verificationResponse struct {
	Verified bool            `json:"verified"`
	Session  sessionResponse `json:"session"`
}

// CheckVerification はメール認証が完了したかを問い合わせる。
// POST /auth/verification/check
func (h *AuthHandler) CheckVerification(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	verified, err := c.CheckEmailVerification(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationResponse{
		Verified: verified,
		Session:  toSessionResponse(c.Snapshot()),
	})
}

// VerifyEmail は認証メールのリンクを処理する。
// userIdまたはsecretが欠けたリンクは再試行しても回復しないため400を返す。
// GET /verify-email?userId=...&secret=...
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	c, ok := controllerFrom(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	verified, err := c.VerifyEmail(r.Context(), q.Get("userId"), q.Get("secret"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationResponse{
		Verified: verified,
		Session:  toSessionResponse(c.Snapshot()),
	})
}
