package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/clip/internal/appwrite"
	"github.com/hitoshi/clip/internal/campaign"
	"github.com/hitoshi/clip/internal/config"
	"github.com/hitoshi/clip/internal/database"
	"github.com/hitoshi/clip/internal/handler"
	"github.com/hitoshi/clip/internal/launch"
	"github.com/hitoshi/clip/internal/logger"
	"github.com/hitoshi/clip/internal/media"
	"github.com/hitoshi/clip/internal/metrics"
	"github.com/hitoshi/clip/internal/middleware"
	"github.com/hitoshi/clip/internal/repository"
	"github.com/hitoshi/clip/internal/security"
	"github.com/hitoshi/clip/internal/session"
	"github.com/hitoshi/clip/internal/worker/cleanup"
)

// sseKeepAlive はイベントストリームのkeep-alive間隔。
const sseKeepAlive = 25 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("document_backend", string(cfg.DocumentBackend)),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// Server はワイヤリング済みのAPIサーバーの構成要素。
type Server struct {
	Handler     http.Handler
	Registry    *session.Registry
	RateLimiter *middleware.RateLimiter
	Cleanup     *cleanup.CleanupJob
}

// Close はバックグラウンドの資源を解放する。すべての訪問を破棄し、イベントストリームを閉じる。
func (s *Server) Close() {
	s.Registry.CloseAll()
	s.RateLimiter.Stop()
}

// NewServer は設定から全依存関係をワイヤリングする。
// dbはDOCUMENT_BACKEND=postgresの場合のみ使用し、それ以外はnilでよい。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*Server, error) {
	log := slog.Default()

	// 1. メトリクス
	collector := metrics.NewCollector(reg)

	// 2. Appwriteクライアント
	client := appwrite.NewClient(
		&http.Client{Timeout: cfg.AppwriteTimeout},
		appwrite.Config{
			Endpoint:  cfg.AppwriteEndpoint,
			ProjectID: cfg.AppwriteProjectID,
			APIKey:    cfg.AppwriteAPIKey,
		},
		log,
	)
	client.SetObserver(collector)

	// 3. ドキュメントストア
	var (
		store   repository.DocumentStore
		checker handler.HealthChecker
	)
	switch cfg.DocumentBackend {
	case config.DocumentBackendPostgres:
		if db == nil {
			return nil, errors.New("postgres document backend requires a database connection")
		}
		store = repository.NewPostgresDocumentStore(db)
		checker = db
	default:
		store = appwrite.NewDocuments(client)
	}
	docs := repository.NewDocumentRepo(store, repository.Collections{
		DatabaseID: cfg.DatabaseID,
		Profiles:   cfg.ProfilesCollectionID,
		Launches:   cfg.LaunchesCollectionID,
		Campaigns:  cfg.CampaignsCollectionID,
	})

	// 4. 画像
	uploader := media.NewUploader(appwrite.NewStorage(client), cfg.BucketID, cfg.ImageMaxSize, log)
	guard := security.NewGuard(cfg.ImageFetchTimeout)
	importer := media.NewImporter(guard.Client(), guard, uploader, log)

	// 5. 訪問ごとのController
	registry := session.NewRegistry(func(secret string) *session.Controller {
		return session.NewController(session.Options{
			Identity:        client,
			Profiles:        docs,
			Images:          uploader,
			Observer:        collector,
			Logger:          log,
			VerificationURL: cfg.VerificationReturnURL(),
		}, secret)
	}, collector)

	// 6. ドメインサービス
	launches := launch.NewService(docs, importer, collector, log)
	campaigns := campaign.NewService(docs, importer, collector, log)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	router := handler.NewRouter(&handler.RouterDeps{
		Logger: log,

		Visits: registry,
		VisitConfig: middleware.VisitConfig{
			CookieSecure:  cfg.CookieSecure,
			CookieDomain:  cfg.CookieDomain,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,

		HealthChecker: checker,
		Metrics:       metrics.Handler(reg),

		Launches:  launches,
		Campaigns: campaigns,
		// フォームの本文と最大3枚の画像が収まる大きさ
		MaxUploadBody: 4*cfg.ImageMaxSize + 1<<20,

		Auth: handler.AuthHandlerConfig{KeepAlive: sseKeepAlive},
	})

	job := cleanup.NewCleanupJob(registry, log)
	job.IdleTTL = cfg.VisitIdleTTL

	return &Server{
		Handler:     router,
		Registry:    registry,
		RateLimiter: rateLimiter,
		Cleanup:     job,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーと訪問のクリーンアップを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続（PostgreSQLバックエンドのみ）
	var db *sql.DB
	if cfg.DocumentBackend == config.DocumentBackendPostgres {
		var err error
		db, err = database.Open(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.Ping(); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
	}

	// 2. ワイヤリング
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv, err := NewServer(cfg, db, reg)
	if err != nil {
		return err
	}

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     srv.Handler,
		ReadTimeout: 15 * time.Second,
		// イベントストリームは接続ごとに書き込み期限を解除する
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		srv.Cleanup.Start(gctx, cleanupInterval(cfg.VisitIdleTTL))
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		// 先に訪問を閉じてイベントストリームを終わらせる
		srv.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// cleanupInterval はアイドル期限に対する掃除の間隔を決める。
func cleanupInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Minute {
		return time.Minute
	}
	if interval > 15*time.Minute {
		return 15 * time.Minute
	}
	return interval
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// PostgreSQLバックエンド以外では何もしない。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		slog.Info("no database configured, skipping migrations",
			slog.String("document_backend", string(cfg.DocumentBackend)),
		)
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
