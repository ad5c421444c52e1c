package middleware

import (
	"net/http"

	"github.com/hitoshi/clip/internal/session"
)

// NewRouteGuard は訪問の状態がareaに入れない場合にリクエストを拒否するミドルウェアを返す。
// メール未認証のユーザーはメイン画面とオンボーディングに、
// オンボーディング未完了のユーザーはメイン画面に到達できない。
func NewRouteGuard(area session.Area) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := ControllerFromContext(r.Context())
			if !ok {
				writeGuardError(w, session.ErrNotAuthenticated, session.RouteLogin)
				return
			}
			snap := c.Snapshot()
			if err := session.Allow(snap, area); err != nil {
				writeGuardError(w, err, session.Route(snap))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
