package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DocumentBackend はドキュメントの保存先を表す。
type DocumentBackend string

const (
	// DocumentBackendAppwrite はAppwrite Databasesに保存する。
	DocumentBackendAppwrite DocumentBackend = "appwrite"
	// DocumentBackendPostgres はセルフホストのPostgreSQLに保存する。
	DocumentBackendPostgres DocumentBackend = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Appwrite
	AppwriteEndpoint  string
	AppwriteProjectID string
	AppwriteAPIKey    string
	AppwriteTimeout   time.Duration

	// 保存先ID。未設定の場合は保存処理をスキップする。
	DatabaseID            string
	ProfilesCollectionID  string
	LaunchesCollectionID  string
	CampaignsCollectionID string
	BucketID              string

	// Document backend
	DocumentBackend DocumentBackend
	DatabaseURL     string

	// Session
	SessionMaxAge int
	VisitIdleTTL  time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitAuth    int

	// Images
	ImageMaxSize      int64
	ImageFetchTimeout time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.AppwriteEndpoint = strings.TrimRight(os.Getenv("APPWRITE_ENDPOINT"), "/")
	if cfg.AppwriteEndpoint == "" {
		missing = append(missing, "APPWRITE_ENDPOINT")
	}

	cfg.AppwriteProjectID = os.Getenv("APPWRITE_PROJECT_ID")
	if cfg.AppwriteProjectID == "" {
		missing = append(missing, "APPWRITE_PROJECT_ID")
	}

	cfg.AppwriteAPIKey = os.Getenv("APPWRITE_API_KEY")
	if cfg.AppwriteAPIKey == "" {
		missing = append(missing, "APPWRITE_API_KEY")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.DocumentBackend = DocumentBackend(getEnvString("DOCUMENT_BACKEND", string(DocumentBackendAppwrite)))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DocumentBackend == DocumentBackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	switch cfg.DocumentBackend {
	case DocumentBackendAppwrite, DocumentBackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported DOCUMENT_BACKEND: %q", cfg.DocumentBackend)
	}

	// Optional fields
	cfg.DatabaseID = os.Getenv("APPWRITE_DATABASE_ID")
	cfg.ProfilesCollectionID = os.Getenv("APPWRITE_PROFILES_COLLECTION_ID")
	cfg.LaunchesCollectionID = os.Getenv("APPWRITE_LAUNCHES_COLLECTION_ID")
	cfg.CampaignsCollectionID = os.Getenv("APPWRITE_CAMPAIGNS_COLLECTION_ID")
	cfg.BucketID = os.Getenv("APPWRITE_BUCKET_ID")

	// Optional fields with defaults
	cfg.AppwriteTimeout = getEnvDuration("APPWRITE_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 365*24*60*60)
	cfg.VisitIdleTTL = getEnvDuration("VISIT_IDLE_TTL", 2*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.ImageMaxSize = getEnvInt64("IMAGE_MAX_SIZE", 5242880)
	cfg.ImageFetchTimeout = getEnvDuration("IMAGE_FETCH_TIMEOUT", 10*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// VerificationReturnURL は認証メールに埋め込む戻り先URLを返す。
func (c *Config) VerificationReturnURL() string {
	return c.BaseURL + "/verify-email"
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
