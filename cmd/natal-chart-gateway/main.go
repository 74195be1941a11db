package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httpapi "github.com/i474232898/natal-chart-gateway/internal/api/http"
	"github.com/i474232898/natal-chart-gateway/internal/config"
	"github.com/i474232898/natal-chart-gateway/internal/logger"
	"github.com/i474232898/natal-chart-gateway/internal/natal"
	"github.com/i474232898/natal-chart-gateway/internal/natal/providers"
	"github.com/i474232898/natal-chart-gateway/internal/ratelimit"
	"github.com/i474232898/natal-chart-gateway/internal/scheduler"
	"github.com/i474232898/natal-chart-gateway/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl := logger.New(cfg.LoggingEnabled, cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := providers.NewAstrologyProvider(providers.HTTPClientConfig{Client: httpClient}, cfg.APIBaseURL, cfg.APIBearerToken)
	if !provider.Configured() {
		zl.Warn("no API bearer token configured; searches and chart generation will be refused")
	}

	cache := store.NewLocationCache(cfg.CacheMaxEntries)

	var limiter ratelimit.Limiter
	if cfg.RedisURL != "" {
		rdb, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			zl.Fatal("failed to configure redis", zap.Error(err))
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit, cfg.RateLimitWindow)
		zl.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	gw := natal.NewGateway(provider, cache, limiter, natal.Options{
		CacheTTL:       cfg.CacheTTL,
		Timeout:        cfg.HTTPTimeout,
		RateLimit:      cfg.RateLimit,
		LoggingEnabled: cfg.LoggingEnabled,
		Logger:         zl,
	})

	// Drops expired cache entries and limiter windows.
	sched := scheduler.New(cfg.SweepInterval, cache, limiter, zl)
	if err := sched.Start(); err != nil {
		zl.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	app := httpapi.NewApp(gw, httpapi.Options{
		AdminAPIKey:     cfg.AdminAPIKey,
		CookieSecure:    cfg.CookieSecure,
		UpstreamTimeout: cfg.HTTPTimeout,
		RequestLogging:  cfg.LoggingEnabled,
		Logger:          zl,
	})

	go func() {
		zl.Info("listening", zap.String("port", cfg.Port))
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Warn("fiber server stopped", zap.Error(err))
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		zl.Error("error during shutdown", zap.Error(err))
	}
}
