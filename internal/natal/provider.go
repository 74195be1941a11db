package natal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/i474232898/natal-chart-gateway/internal/ratelimit"
)

// Provider abstracts the external location/chart service.
type Provider interface {
	Name() string
	BaseURL() string
	// Configured reports whether credentials are present.
	Configured() bool
	SearchLocations(ctx context.Context, query string) ([]LocationRecord, error)
	GenerateChart(ctx context.Context, data BirthData) (json.RawMessage, error)
}

// Cache is the contract the location cache must satisfy.
type Cache interface {
	Get(query string) ([]LocationRecord, bool)
	Put(query string, records []LocationRecord, ttl time.Duration)
}

// RateLimiter is the per-client quota the gateway consults before every
// upstream call.
type RateLimiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
	Usage(ctx context.Context, clientID string) (ratelimit.Usage, error)
}
