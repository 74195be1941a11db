// Package client calls the gateway's HTTP API. It handles the anti-forgery
// session transparently and turns error bodies back into *natal.Error.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

const csrfHeader = "X-Csrf-Token"

// Client talks to a running gateway.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	token string
}

// New returns a Client for the gateway at baseURL (scheme and host, no path).
// A nil httpClient gets a 30s timeout and its own cookie jar.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    httpClient,
	}, nil
}

// SearchLocations runs a location search through the gateway.
func (c *Client) SearchLocations(ctx context.Context, query string) ([]natal.LocationRecord, error) {
	var out struct {
		Results []natal.LocationRecord `json:"results"`
		Count   int                    `json:"count"`
	}
	if err := c.post(ctx, "/locations/search", map[string]string{"query": query}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GenerateChart submits a birth form and returns the generated chart.
func (c *Client) GenerateChart(ctx context.Context, form natal.BirthForm) (*natal.ChartResult, error) {
	var out natal.ChartResult
	if err := c.post(ctx, "/charts", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// post sends a protected request, fetching a session token first if needed
// and once more if the server rejects the token it has.
func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		token, err := c.sessionToken(ctx, attempt > 0)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set(csrfHeader, token)

		resp, err := c.http.Do(req)
		if err != nil {
			return transportError(ctx, err)
		}

		if resp.StatusCode == http.StatusForbidden && attempt == 0 {
			resp.Body.Close()
			continue
		}
		return decodeResponse(resp, out)
	}
}

func (c *Client) sessionToken(ctx context.Context, refresh bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && !refresh {
		return c.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", transportError(ctx, err)
	}

	var out struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := decodeResponse(resp, &out); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", natal.NewParseError(fmt.Errorf("session response carried no token"))
	}
	c.token = out.CSRFToken
	return c.token, nil
}

type errorBody struct {
	ErrorCode      string            `json:"errorCode"`
	Message        string            `json:"message"`
	FieldErrors    map[string]string `json:"fieldErrors"`
	UpstreamStatus int               `json:"upstreamStatus"`
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return natal.NewParseError(err)
		}
		return nil
	}

	var eb errorBody
	if err := json.NewDecoder(resp.Body).Decode(&eb); err != nil || eb.Message == "" {
		return natal.NewNetworkError(fmt.Sprintf("Gateway error (HTTP %d).", resp.StatusCode), err)
	}

	e := &natal.Error{
		Kind:        natal.Kind(eb.ErrorCode),
		Message:     eb.Message,
		Status:      eb.UpstreamStatus,
		FieldErrors: eb.FieldErrors,
	}
	for field := range eb.FieldErrors {
		if e.Field == "" || field < e.Field {
			e.Field = field
		}
	}
	if !knownKind(e.Kind) {
		e.Kind = natal.KindNetwork
	}
	return e
}

func knownKind(k natal.Kind) bool {
	switch k {
	case natal.KindValidation, natal.KindAuthNotConfigured, natal.KindRateLimitExceeded,
		natal.KindUpstreamTimeout, natal.KindNetwork, natal.KindUpstream, natal.KindParse:
		return true
	}
	return false
}

func transportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return natal.NewTimeoutError(err)
	}
	return natal.NewNetworkError("", err)
}
