package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/natal-chart-gateway/internal/natal/providers"
)

type AppConfig struct {
	APIBaseURL     string `validate:"required,url"`
	APIBearerToken string

	// Requests allowed per client per RateLimitWindow.
	RateLimit       int           `validate:"min=0"`
	RateLimitWindow time.Duration `validate:"gt=0"`

	// Location cache.
	CacheTTL        time.Duration `validate:"gt=0"`
	CacheMaxEntries int           `validate:"min=0"` // 0 = unlimited

	HTTPTimeout time.Duration `validate:"gt=0"`

	LoggingEnabled bool
	LogLevel       string `validate:"oneof=debug info warn error"`

	// RedisURL switches the limiter to Redis when set.
	RedisURL string `validate:"omitempty,url"`

	// SweepInterval controls how often expired cache entries and limiter
	// windows are dropped.
	SweepInterval time.Duration `validate:"gt=0"`

	// AdminAPIKey guards the connection test endpoint; empty disables it.
	AdminAPIKey string

	// CookieSecure marks the anti-forgery cookie Secure; enable behind TLS.
	CookieSecure bool

	Port string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.APIBaseURL = strings.TrimRight(getenvDefault("NATAL_API_BASE_URL", providers.DefaultBaseURL), "/")
	cfg.APIBearerToken = strings.TrimSpace(os.Getenv("NATAL_API_BEARER_TOKEN"))

	cfg.RateLimit = getenvInt("NATAL_RATE_LIMIT", 100)

	var err error
	if cfg.RateLimitWindow, err = getenvDuration("NATAL_RATE_LIMIT_WINDOW", "1h"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getenvDuration("NATAL_CACHE_TTL", "1h"); err != nil {
		return nil, err
	}
	cfg.CacheMaxEntries = getenvInt("NATAL_CACHE_MAX_ENTRIES", 10000)

	if cfg.HTTPTimeout, err = getenvDuration("NATAL_HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	cfg.LoggingEnabled = getenvBool("NATAL_ENABLE_LOGGING", true)
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))

	cfg.RedisURL = os.Getenv("REDIS_URL")

	if cfg.SweepInterval, err = getenvDuration("SWEEP_INTERVAL", "10m"); err != nil {
		return nil, err
	}

	cfg.AdminAPIKey = os.Getenv("ADMIN_API_KEY")
	cfg.CookieSecure = getenvBool("COOKIE_SECURE", false)
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
