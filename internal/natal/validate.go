package natal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var fieldLabels = map[string]string{
	"name":       "Name",
	"birth_date": "Birth date",
	"birth_time": "Birth time",
	"latitude":   "Latitude",
	"longitude":  "Longitude",
	"timezone":   "Timezone",
}

// Validate checks that all required chart fields are present and well-typed.
// The returned error names the first offending field and lists all of them.
func (b BirthData) Validate() error {
	err := validate.Struct(b)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return validationError("", err.Error())
	}

	out := &Error{
		Kind:        KindValidation,
		Message:     "Please correct the errors below.",
		FieldErrors: make(map[string]string, len(verrs)),
	}
	for _, fe := range verrs {
		field := fe.Field()
		if out.Field == "" {
			out.Field = field
		}
		if _, seen := out.FieldErrors[field]; !seen {
			out.FieldErrors[field] = fieldMessage(field, fe.Tag())
		}
	}
	out.Message = out.FieldErrors[out.Field]
	return out
}

func fieldMessage(field, tag string) string {
	label := fieldLabels[field]
	if label == "" {
		label = field
	}
	switch tag {
	case "required":
		return label + " is required."
	case "datetime":
		if field == "birth_time" {
			return "Please enter a valid birth time."
		}
		return "Please enter a valid birth date."
	case "latitude":
		return "Latitude must be between -90 and 90."
	case "longitude":
		return "Longitude must be between -180 and 180."
	default:
		return label + " is invalid."
	}
}

// BirthForm is a chart submission as posted by a browser form: every value is
// a string. Parse turns it into BirthData.
type BirthForm struct {
	Name          string `json:"name" form:"name"`
	BirthDate     string `json:"birth_date" form:"birth_date"`
	BirthTime     string `json:"birth_time" form:"birth_time"`
	Location      string `json:"location" form:"location"`
	Latitude      string `json:"latitude" form:"latitude"`
	Longitude     string `json:"longitude" form:"longitude"`
	Timezone      string `json:"timezone" form:"timezone"`
	Offset        string `json:"offset" form:"offset"`
	OffsetRounded string `json:"offset_round" form:"offset_round"`
}

// UnmarshalJSON accepts numbers as well as strings for every field, so API
// clients may send coordinates as JSON numbers.
func (f *BirthForm) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	value := func(key string) (string, error) {
		v := bytes.TrimSpace(raw[key])
		if len(v) == 0 || string(v) == "null" {
			return "", nil
		}
		if v[0] == '"' {
			var s string
			err := json.Unmarshal(v, &s)
			return s, err
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err != nil {
			return "", fmt.Errorf("%s: expected a string or number", key)
		}
		return n.String(), nil
	}

	fields := []struct {
		key string
		dst *string
	}{
		{"name", &f.Name},
		{"birth_date", &f.BirthDate},
		{"birth_time", &f.BirthTime},
		{"location", &f.Location},
		{"latitude", &f.Latitude},
		{"longitude", &f.Longitude},
		{"timezone", &f.Timezone},
		{"offset", &f.Offset},
		{"offset_round", &f.OffsetRounded},
	}
	for _, fd := range fields {
		v, err := value(fd.key)
		if err != nil {
			return err
		}
		*fd.dst = v
	}
	return nil
}

// Parse coerces the form into BirthData. Empty numeric fields become nil so
// that Validate reports them as missing; unparsable ones are reported here.
func (f BirthForm) Parse() (BirthData, error) {
	data := BirthData{
		Name:      strings.TrimSpace(f.Name),
		BirthDate: strings.TrimSpace(f.BirthDate),
		BirthTime: strings.TrimSpace(f.BirthTime),
		Location:  strings.TrimSpace(f.Location),
		Timezone:  strings.TrimSpace(f.Timezone),
		Offset:    strings.TrimSpace(f.Offset),
	}

	var bad *Error
	parse := func(field, raw string) *float64 {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			if bad == nil {
				bad = &Error{Kind: KindValidation, FieldErrors: map[string]string{}}
			}
			label := fieldLabels[field]
			if label == "" {
				label = "Timezone offset"
			}
			if bad.Field == "" {
				bad.Field = field
			}
			bad.FieldErrors[field] = label + " must be a number."
			return nil
		}
		return &v
	}

	data.Latitude = parse("latitude", f.Latitude)
	data.Longitude = parse("longitude", f.Longitude)
	data.OffsetRounded = parse("offset_round", f.OffsetRounded)

	if bad != nil {
		bad.Message = bad.FieldErrors[bad.Field]
		return data, bad
	}
	return data, nil
}
