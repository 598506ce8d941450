package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ストレージバックエンド
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StorageBackend string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int

	// Shopify
	ShopifyShopDomain   string
	ShopifyAccessToken  string
	ShopifyAPIVersion   string
	ShopifyCacheTTL     time.Duration
	ShopifySyncInterval time.Duration
	ShopifyPageDelay    time.Duration

	// Brevo
	BrevoAPIKey      string
	BrevoListID      int64
	BrevoSenderEmail string
	BrevoSenderName  string

	// Launch
	LaunchCheckInterval     time.Duration
	LaunchPrelaunchDuration time.Duration
	LaunchDropDuration      time.Duration
	StoreURL                string

	// Rate Limit
	RateLimitGeneral int
	RateLimitSignup  int
	TrustProxy       bool // X-Forwarded-Forを信頼するか（リバースプロキシ配下のみtrue）

	// Server
	ServerPort string
	BaseURL    string
	AdminToken string

	// Cookie
	CookieSecure bool

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.StorageBackend = strings.ToLower(getEnvString("STORAGE_BACKEND", BackendMemory))
	switch cfg.StorageBackend {
	case BackendMemory, BackendRedis:
	case BackendPostgres:
		if os.Getenv("DATABASE_URL") == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_BACKEND: %q (memory, postgres, redis)", cfg.StorageBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)

	cfg.ShopifyShopDomain = os.Getenv("SHOPIFY_SHOP_DOMAIN")
	cfg.ShopifyAccessToken = os.Getenv("SHOPIFY_ACCESS_TOKEN")
	cfg.ShopifyAPIVersion = getEnvString("SHOPIFY_API_VERSION", "2024-10")
	cfg.ShopifyCacheTTL = getEnvDuration("SHOPIFY_CACHE_TTL", time.Hour)
	cfg.ShopifySyncInterval = getEnvDuration("SHOPIFY_SYNC_INTERVAL", 30*time.Minute)
	cfg.ShopifyPageDelay = getEnvDuration("SHOPIFY_PAGE_DELAY", 25*time.Millisecond)

	cfg.BrevoAPIKey = os.Getenv("BREVO_API_KEY")
	cfg.BrevoListID = getEnvInt64("BREVO_LIST_ID", 0)
	cfg.BrevoSenderEmail = getEnvString("BREVO_SENDER_EMAIL", "no-reply@queenlucy.com")
	cfg.BrevoSenderName = getEnvString("BREVO_SENDER_NAME", "Queen Lucy")

	cfg.LaunchCheckInterval = getEnvDuration("LAUNCH_CHECK_INTERVAL", 30*time.Second)
	cfg.LaunchPrelaunchDuration = getEnvDuration("LAUNCH_PRELAUNCH_DURATION", 24*time.Hour)
	cfg.LaunchDropDuration = getEnvDuration("LAUNCH_DROP_DURATION", 24*time.Hour)
	cfg.StoreURL = getEnvString("STORE_URL", cfg.BaseURL)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSignup = getEnvInt("RATE_LIMIT_SIGNUP", 5)
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.CookieSecure = getEnvBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// ShopifyConfigured はShopifyの接続情報が揃っているかを返す。
func (c *Config) ShopifyConfigured() bool {
	return c.ShopifyShopDomain != "" && c.ShopifyAccessToken != ""
}

// BrevoConfigured はBrevoのAPIキーとリストIDが揃っているかを返す。
func (c *Config) BrevoConfigured() bool {
	return c.BrevoAPIKey != "" && c.BrevoListID > 0
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
