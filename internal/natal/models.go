package natal

import (
	"encoding/json"
	"strconv"
)

// LocationRecord is one searchable place returned by the provider.
// Values are never mutated after the provider projection creates them.
type LocationRecord struct {
	ID               int      `json:"id"`
	Label            string   `json:"label"`
	City             string   `json:"city"`
	State            string   `json:"state"`
	Country          string   `json:"country"`
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Timezone         string   `json:"timezone"`
	UTCOffset        string   `json:"offset"`
	UTCOffsetRounded *float64 `json:"offset_round,omitempty"` // nil when the provider omits it
	Population       int      `json:"population,omitempty"`
}

// BirthData is the typed chart-generation payload. Latitude and Longitude are
// pointers so that a missing coordinate is distinguishable from 0.
type BirthData struct {
	Name          string   `json:"name" validate:"required"`
	BirthDate     string   `json:"birth_date" validate:"required,datetime=2006-01-02"`
	BirthTime     string   `json:"birth_time" validate:"required,datetime=15:04"`
	Location      string   `json:"location,omitempty"`
	Latitude      *float64 `json:"latitude" validate:"required,latitude"`
	Longitude     *float64 `json:"longitude" validate:"required,longitude"`
	Timezone      string   `json:"timezone" validate:"required"`
	Offset        string   `json:"offset,omitempty"`
	OffsetRounded *float64 `json:"offset_round,omitempty"`
}

// ChartResult pairs the provider's chart object with the data it was
// generated from.
type ChartResult struct {
	ChartData        json.RawMessage `json:"chartData"`
	RenderedFormData BirthData       `json:"renderedFormData"`
}

// Status describes how the gateway is configured.
type Status struct {
	Configured     bool   `json:"configured"`
	Provider       string `json:"provider"`
	BaseURL        string `json:"baseUrl"`
	LoggingEnabled bool   `json:"loggingEnabled"`
	RateLimit      int    `json:"rateLimit"`
}

// FormatOffset renders a fractional-hour offset with the shortest exact
// representation: 5.5 stays "5.5", -9.75 stays "-9.75", 2 becomes "2".
func FormatOffset(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatCoordinate renders a coordinate without padding or rounding.
func FormatCoordinate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
