// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net/http"

	"github.com/hitoshi/clip/internal/session"
)

const (
	// visitCookieName は訪問IDを保持するCookie。ブラウザを閉じると消える。
	visitCookieName = "clip_visit"
	// secretCookieName はプロバイダーのセッションsecretを保持するCookie。
	secretCookieName = "clip_session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	visitIDContextKey     = contextKey("visit_id")
	controllerContextKey  = contextKey("controller")
	requestInfoContextKey = contextKey("request_info")
)

// requestInfo は内側のミドルウェアが判明した訪問の情報を外側のログに渡すための箱。
type requestInfo struct {
	visitID string
	userID  string
}

func contextWithRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, requestInfoContextKey, info)
}

// VisitOpener は訪問IDからControllerを取得または作成する。
// session.Registryが実装する。
type VisitOpener interface {
	Get(visitID string) (*session.Controller, bool)
	Open(ctx context.Context, visitID, secret string) (string, *session.Controller, bool)
}

// VisitAdmitter は新しい訪問の作成を許可するかを判定する。
// RateLimiterが実装する。
type VisitAdmitter interface {
	AllowNewVisit(r *http.Request) bool
	WriteRejectedVisit(w http.ResponseWriter)
}

// VisitConfig は訪問Cookieの設定。
type VisitConfig struct {
	CookieSecure  bool
	CookieDomain  string
	SessionMaxAge int
	// Admitter がnilでなければ、未知の訪問IDでの訪問作成前に判定する。
	Admitter VisitAdmitter
}

// NewVisitMiddleware は訪問Cookieから訪問のControllerを取り出し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未知の訪問の場合はsecret Cookieを引き継いで新しい訪問を作成する。
// レスポンスヘッダーを書き出す時点でControllerのsecretをCookieに書き戻す。
func NewVisitMiddleware(opener VisitOpener, config VisitConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			visitID := cookieValue(r, visitCookieName)
			secret := cookieValue(r, secretCookieName)

			if config.Admitter != nil {
				if _, known := opener.Get(visitID); !known && !config.Admitter.AllowNewVisit(r) {
					config.Admitter.WriteRejectedVisit(w)
					return
				}
			}

			id, c, _ := opener.Open(r.Context(), visitID, secret)
			if id != visitID {
				http.SetCookie(w, &http.Cookie{
					Name:     visitCookieName,
					Value:    id,
					Path:     "/",
					Domain:   config.CookieDomain,
					HttpOnly: true,
					Secure:   config.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			vw := &visitWriter{
				ResponseWriter: w,
				controller:     c,
				cookieSecret:   secret,
				config:         config,
			}
			ctx := ContextWithVisit(r.Context(), id, c)
			next.ServeHTTP(vw, r.WithContext(ctx))
			vw.syncSecret()

			if info, ok := r.Context().Value(requestInfoContextKey).(*requestInfo); ok {
				info.visitID = id
				info.userID = c.Snapshot().UserID
			}
		})
	}
}

// visitWriter はヘッダー送出前にsecret Cookieを同期する。
type visitWriter struct {
	http.ResponseWriter
	controller   *session.Controller
	cookieSecret string
	config       VisitConfig
	synced       bool
}

func (vw *visitWriter) WriteHeader(code int) {
	vw.syncSecret()
	vw.ResponseWriter.WriteHeader(code)
}

func (vw *visitWriter) Write(b []byte) (int, error) {
	vw.syncSecret()
	return vw.ResponseWriter.Write(b)
}

// Unwrap はhttp.ResponseControllerがFlushなどを辿れるようにする。
func (vw *visitWriter) Unwrap() http.ResponseWriter {
	return vw.ResponseWriter
}

func (vw *visitWriter) syncSecret() {
	if vw.synced {
		return
	}
	vw.synced = true

	secret := vw.controller.Secret()
	if secret == vw.cookieSecret {
		return
	}
	cookie := &http.Cookie{
		Name:     secretCookieName,
		Value:    secret,
		Path:     "/",
		Domain:   vw.config.CookieDomain,
		MaxAge:   vw.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   vw.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if secret == "" {
		cookie.MaxAge = -1
	}
	http.SetCookie(vw.ResponseWriter, cookie)
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

// ControllerFromContext はリクエストコンテキストから訪問のControllerを取得する。
// 訪問ミドルウェアを通過したリクエストでのみ有効。
func ControllerFromContext(ctx context.Context) (*session.Controller, bool) {
	c, ok := ctx.Value(controllerContextKey).(*session.Controller)
	return c, ok && c != nil
}

// VisitIDFromContext はリクエストコンテキストから訪問IDを取得する。
func VisitIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(visitIDContextKey).(string)
	return id
}

// ContextWithVisit はコンテキストに訪問IDとControllerを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithVisit(ctx context.Context, visitID string, c *session.Controller) context.Context {
	ctx = context.WithValue(ctx, visitIDContextKey, visitID)
	return context.WithValue(ctx, controllerContextKey, c)
}
