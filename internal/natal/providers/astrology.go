package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// Version is reported in the outbound User-Agent.
const Version = "1.0.0"

// DefaultBaseURL is the public Astrology Cosmic API.
const DefaultBaseURL = "https://resource.astrologycosmic.com/public/api/v1"

// AstrologyProvider implements the natal.Provider interface for the
// Astrology Cosmic API.
type AstrologyProvider struct {
	name    string
	token   string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewAstrologyProvider(cfg HTTPClientConfig, baseURL, token string) *AstrologyProvider {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &AstrologyProvider{
		name:    "astrologycosmic",
		token:   strings.TrimSpace(token),
		baseURL: baseURL,
		client:  cfg.Client,
		circuit: newBreaker("astrologycosmic", cfg),
	}
}

func (p *AstrologyProvider) Name() string {
	return p.name
}

func (p *AstrologyProvider) BaseURL() string {
	return p.baseURL
}

func (p *AstrologyProvider) Configured() bool {
	return p.token != ""
}

func (p *AstrologyProvider) SearchLocations(ctx context.Context, query string) ([]natal.LocationRecord, error) {
	if !p.Configured() {
		return nil, natal.ErrAuthNotConfigured()
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("name", query)

		u := fmt.Sprintf("%s/cities?%s", p.baseURL, values.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		p.setHeaders(req)
		return req, nil
	}

	body, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	return decodeCities(body)
}

func (p *AstrologyProvider) GenerateChart(ctx context.Context, data natal.BirthData) (json.RawMessage, error) {
	if !p.Configured() {
		return nil, natal.ErrAuthNotConfigured()
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode birth data: %w", err)
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/natal-chart/generate", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		p.setHeaders(req)
		return req, nil
	}

	body, err := doRequest(ctx, p.client, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}

	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, natal.NewParseError(fmt.Errorf("chart response is not valid JSON"))
	}
	if len(body) == 0 || body[0] != '{' {
		return nil, natal.NewParseError(fmt.Errorf("chart response is not a JSON object"))
	}
	return json.RawMessage(body), nil
}

func (p *AstrologyProvider) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "natal-chart-gateway/"+Version)
	req.Header.Set("X-Request-ID", uuid.NewString())
}

type cityItem struct {
	ID          flexFloat  `json:"id"`
	Label       flexString `json:"label"`
	Name        flexString `json:"name"`
	City        flexString `json:"city"`
	State       flexString `json:"state"`
	Country     flexString `json:"country"`
	Latitude    flexFloat  `json:"latitude"`
	Longitude   flexFloat  `json:"longitude"`
	Timezone    flexString `json:"timezone"`
	Offset      flexString `json:"offset"`
	OffsetRound flexFloat  `json:"offset_round"`
	Population  flexFloat  `json:"population"`
}

// decodeCities accepts a bare array of places or an object carrying one under
// "data" or "results", possibly nested. Items missing an identifier, a label,
// coordinates or a timezone are dropped.
func decodeCities(body []byte) ([]natal.LocationRecord, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, natal.NewParseError(fmt.Errorf("search response is not valid JSON"))
	}
	items, err := cityList(body)
	if err != nil {
		return nil, err
	}

	records := make([]natal.LocationRecord, 0, len(items))
	for _, raw := range items {
		var item cityItem
		if err := json.Unmarshal(raw, &item); err != nil {
			continue
		}
		if rec, ok := item.record(); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func cityList(body []byte) ([]json.RawMessage, error) {
	switch {
	case len(body) > 0 && body[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, natal.NewParseError(err)
		}
		return items, nil

	case len(body) > 0 && body[0] == '{':
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, natal.NewParseError(err)
		}
		for _, key := range []string{"data", "results"} {
			inner := bytes.TrimSpace(envelope[key])
			if len(inner) > 0 && (inner[0] == '[' || inner[0] == '{') {
				return cityList(inner)
			}
		}
		return nil, nil

	default:
		return nil, natal.NewParseError(fmt.Errorf("unexpected search response shape"))
	}
}

func (c cityItem) record() (natal.LocationRecord, bool) {
	label := c.Label.value
	if strings.TrimSpace(label) == "" {
		label = c.Name.value
	}
	if !c.ID.valid || strings.TrimSpace(label) == "" || !c.Latitude.valid || !c.Longitude.valid ||
		strings.TrimSpace(c.Timezone.value) == "" {
		return natal.LocationRecord{}, false
	}

	var offsetRound *float64
	if c.OffsetRound.valid {
		offsetRound = natal.Float64(c.OffsetRound.value)
	}

	city := c.City.value
	if city == "" {
		city = c.Name.value
	}

	return natal.LocationRecord{
		ID:               int(c.ID.value),
		Label:            label,
		City:             city,
		State:            c.State.value,
		Country:          c.Country.value,
		Latitude:         c.Latitude.value,
		Longitude:        c.Longitude.value,
		Timezone:         c.Timezone.value,
		UTCOffset:        c.Offset.value,
		UTCOffsetRounded: offsetRound,
		Population:       int(c.Population.value),
	}, true
}
