package natal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natal_gateway_cache_lookups_total",
			Help: "Location cache lookups by result",
		},
		[]string{"result"},
	)

	rateLimitDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natal_gateway_rate_limit_denials_total",
			Help: "Requests refused by the per-client quota",
		},
		[]string{"operation"},
	)

	upstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "natal_gateway_upstream_requests_total",
			Help: "Upstream provider calls by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	upstreamRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "natal_gateway_upstream_request_duration_seconds",
			Help:    "Upstream provider latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)
)

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "unknown"
}
