package natal

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/i474232898/natal-chart-gateway/internal/ratelimit"
)

// MinQueryLength is the shortest trimmed query that reaches the network.
const MinQueryLength = 2

const (
	opSearch   = "location_search"
	opGenerate = "natal_chart_generation"
)

// Options carries the settings the gateway reads once at construction.
type Options struct {
	CacheTTL       time.Duration
	Timeout        time.Duration
	RateLimit      int
	LoggingEnabled bool
	Logger         *zap.Logger
}

// Gateway mediates every call to the external provider: validation, cache,
// per-client quota, a single upstream attempt and error normalization.
type Gateway struct {
	provider Provider
	cache    Cache
	limiter  RateLimiter
	opts     Options
	logger   *zap.Logger
}

// NewGateway creates a new Gateway.
func NewGateway(provider Provider, cache Cache, limiter RateLimiter, opts Options) *Gateway {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		provider: provider,
		cache:    cache,
		limiter:  limiter,
		opts:     opts,
		logger:   logger.Named("gateway"),
	}
}

// SearchLocations returns the places matching query. Cache hits consume no
// quota; misses consume one unit and make exactly one upstream call.
func (g *Gateway) SearchLocations(ctx context.Context, clientID, query string) ([]LocationRecord, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil, ErrQueryTooShort()
	}

	if records, ok := g.cache.Get(query); ok {
		cacheLookupsTotal.WithLabelValues("hit").Inc()
		g.logCall(opSearch, "cache_hit", query, clientID, nil)
		return records, nil
	}
	cacheLookupsTotal.WithLabelValues("miss").Inc()

	if err := g.preflight(ctx, opSearch, clientID); err != nil {
		g.logCall(opSearch, "error", query, clientID, err)
		return nil, err
	}

	var records []LocationRecord
	err := g.call(ctx, opSearch, func(ctx context.Context) error {
		var err error
		records, err = g.provider.SearchLocations(ctx, query)
		return err
	})
	if err != nil {
		g.logCall(opSearch, "error", query, clientID, err)
		return nil, err
	}

	// Empty result sets are not cached so newly added places appear at once.
	if len(records) > 0 {
		g.cache.Put(query, records, g.opts.CacheTTL)
	}
	g.logCall(opSearch, "success", query, clientID, nil)
	return records, nil
}

// GenerateChart validates data and forwards it to the provider. Results are
// never cached since generation may be billed by the provider.
func (g *Gateway) GenerateChart(ctx context.Context, clientID string, data BirthData) (*ChartResult, error) {
	if err := data.Validate(); err != nil {
		g.logCall(opGenerate, "invalid", data.Name, clientID, err)
		return nil, err
	}

	if err := g.preflight(ctx, opGenerate, clientID); err != nil {
		g.logCall(opGenerate, "error", data.Name, clientID, err)
		return nil, err
	}

	var chart json.RawMessage
	err := g.call(ctx, opGenerate, func(ctx context.Context) error {
		var err error
		chart, err = g.provider.GenerateChart(ctx, data)
		return err
	})
	if err != nil {
		g.logCall(opGenerate, "error", data.Name, clientID, err)
		return nil, err
	}

	g.logCall(opGenerate, "success", data.Name, clientID, nil)
	return &ChartResult{
		ChartData:        chart,
		RenderedFormData: data,
	}, nil
}

// TestConnection runs a known search through the normal path.
func (g *Gateway) TestConnection(ctx context.Context, clientID string) ([]LocationRecord, error) {
	if !g.provider.Configured() {
		return nil, ErrAuthNotConfigured()
	}
	return g.SearchLocations(ctx, clientID, "New York")
}

// Status reports how the gateway is configured.
func (g *Gateway) Status() Status {
	return Status{
		Configured:     g.provider.Configured(),
		Provider:       g.provider.Name(),
		BaseURL:        g.provider.BaseURL(),
		LoggingEnabled: g.opts.LoggingEnabled,
		RateLimit:      g.opts.RateLimit,
	}
}

// RateLimitUsage reports the caller's position in its current window.
func (g *Gateway) RateLimitUsage(ctx context.Context, clientID string) (ratelimit.Usage, error) {
	return g.limiter.Usage(ctx, clientID)
}

// preflight runs the checks that must pass before any upstream call: the
// credential check first, so a misconfiguration consumes no quota, then the
// quota itself.
func (g *Gateway) preflight(ctx context.Context, op, clientID string) error {
	if !g.provider.Configured() {
		return ErrAuthNotConfigured()
	}

	allowed, err := g.limiter.Allow(ctx, clientID)
	if err != nil {
		return NewNetworkError("Rate limiting is temporarily unavailable. Please try again later.", err)
	}
	if !allowed {
		rateLimitDenialsTotal.WithLabelValues(op).Inc()
		return ErrRateLimitExceeded()
	}
	return nil
}

// call makes the single upstream attempt under the configured deadline.
func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	upstreamRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	upstreamRequestsTotal.WithLabelValues(op, outcomeOf(err)).Inc()

	if err != nil && KindOf(err) == "" {
		// Providers return *Error; anything else is a transport surprise.
		if ctx.Err() == context.DeadlineExceeded {
			return NewTimeoutError(err)
		}
		return NewNetworkError("", err)
	}
	return err
}

func (g *Gateway) logCall(op, status, identifier, clientID string, err error) {
	if !g.opts.LoggingEnabled {
		return
	}
	fields := []zap.Field{
		zap.String("type", op),
		zap.String("status", status),
		zap.String("identifier", identifier),
		zap.String("client_id", clientID),
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
		g.logger.Warn("api call", fields...)
		return
	}
	g.logger.Info("api call", fields...)
}
