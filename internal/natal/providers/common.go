package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 4 << 20

// HTTPClientConfig bundles the outbound client and its breaker settings.
type HTTPClientConfig struct {
	Client *http.Client

	// Breaker trips after this many consecutive failures. Zero uses 5.
	FailureThreshold uint32
	// OpenTimeout is how long a tripped breaker rejects calls. Zero uses 30s.
	OpenTimeout time.Duration
}

var defaultStatusMessages = map[int]string{
	http.StatusBadRequest:          "Bad Request - Invalid data provided.",
	http.StatusUnauthorized:        "Unauthorized - Invalid or missing API token.",
	http.StatusForbidden:           "Forbidden - Access denied.",
	http.StatusNotFound:            "Not Found - API endpoint not found.",
	http.StatusTooManyRequests:     "Too Many Requests - Rate limit exceeded.",
	http.StatusInternalServerError: "Internal Server Error - API service error.",
	http.StatusBadGateway:          "Bad Gateway - API service unavailable.",
	http.StatusServiceUnavailable:  "Service Unavailable - API service temporarily unavailable.",
}

var errNoHTTPClient = errors.New("http client not configured")

func newBreaker(name string, cfg HTTPClientConfig) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	timeout := cfg.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Client errors are the caller's fault and say nothing about the
		// provider's health.
		IsSuccessful: func(err error) bool {
			var e *natal.Error
			if errors.As(err, &e) && e.Kind == natal.KindUpstream {
				return e.Status < 500
			}
			return err == nil
		},
	})
}

// doRequest makes exactly one attempt through the circuit breaker and returns
// the body of a 2xx response. Every failure comes back as a *natal.Error.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	if client == nil {
		return nil, natal.NewNetworkError("", errNoHTTPClient)
	}

	req, err := buildRequest(ctx)
	if err != nil {
		return nil, natal.NewNetworkError("", err)
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, natal.NewUpstreamError(resp.StatusCode, statusMessage(resp.StatusCode, body))
		}
		return body, nil
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, natal.NewNetworkError("", fmt.Errorf("unexpected result type %T from circuit breaker", result))
	}
	return body, nil
}

func classify(ctx context.Context, err error) error {
	var e *natal.Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return natal.NewNetworkError("The location service is temporarily unavailable. Please try again later.", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return natal.NewTimeoutError(err)
	}
	return natal.NewNetworkError("", err)
}

// statusMessage prefers the provider's own message over the default text.
func statusMessage(status int, body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
	}
	if msg, ok := defaultStatusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("API Error (HTTP %d)", status)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat struct {
	value float64
	valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		f.set(strings.TrimSpace(s))
		return nil
	}
	f.set(string(b))
	return nil
}

// set records s when it is a finite number; NaN and infinities stay invalid.
func (f *flexFloat) set(s string) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	f.value, f.valid = v, true
}

// flexString accepts a JSON string or number, keeping the number's text.
type flexString struct {
	value string
	valid bool
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		f.value, f.valid = s, true
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err == nil {
		f.value, f.valid = string(b), true
	}
	return nil
}
