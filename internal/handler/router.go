package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/session"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	Visits            middleware.VisitOpener
	VisitConfig       middleware.VisitConfig
	CSRFConfig        middleware.CSRFConfig
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder

	// 公開エンドポイント
	HealthChecker HealthChecker
	Metrics       http.Handler

	// 作成系
	Launches  LaunchCreator
	Campaigns CampaignCreator
	// MaxUploadBody はmultipartリクエストのボディ上限（バイト）。
	MaxUploadBody int64

	Auth AuthHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → Logging → SecurityHeaders → CORS → CSRF → Visit → RateLimit(General) → RouteGuard
//
// /health と /metrics は訪問を作らない。新しい訪問の作成はRateLimiterでIP単位に制限する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	visitConfig := deps.VisitConfig
	if visitConfig.Admitter == nil && deps.RateLimiter != nil {
		visitConfig.Admitter = deps.RateLimiter
	}

	authHandler := NewAuthHandler(deps.Auth)
	onboardingHandler := NewOnboardingHandler(deps.MaxUploadBody)
	contentHandler := NewContentHandler(deps.Launches, deps.Campaigns, deps.MaxUploadBody)

	// --- 訪問を伴うルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(middleware.NewVisitMiddleware(deps.Visits, visitConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/me", authHandler.Me)
			r.Get("/events", authHandler.Events)
			r.Post("/logout", authHandler.Logout)

			// 総当たりとメール送信の濫用を防ぐためIP単位でも制限する
			r.Group(func(r chi.Router) {
				r.Use(deps.RateLimiter.AuthMiddleware())
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)

				r.With(middleware.NewRouteGuard(session.AreaVerification)).Post("/verification", authHandler.SendVerification)
			})
			r.With(middleware.NewRouteGuard(session.AreaVerification)).Post("/verification/check", authHandler.CheckVerification)
		})

		// 認証メールのリンクは別ブラウザで開かれることもあるため、ガードを掛けない
		r.Get("/verify-email", authHandler.VerifyEmail)

		r.Route("/api/onboarding", func(r chi.Router) {
			r.Use(middleware.NewRouteGuard(session.AreaOnboarding))
			r.Get("/", onboardingHandler.Get)
			r.Post("/role", onboardingHandler.SelectRole)
			r.Post("/next", onboardingHandler.Next)
			r.Post("/back", onboardingHandler.Back)
			r.Post("/complete", onboardingHandler.Complete)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewRouteGuard(session.AreaApp))
			r.Post("/api/launches", contentHandler.CreateLaunch)
			r.Post("/api/campaigns", contentHandler.CreateCampaign)
		})
	})

	return r
}
