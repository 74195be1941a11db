package natal

import (
	"errors"
	"testing"
)

func TestBirthFormParse(t *testing.T) {
	f := BirthForm{
		Name:          "  Ada ",
		BirthDate:     "1990-08-15",
		BirthTime:     "14:30",
		Location:      "Mumbai, India",
		Latitude:      "19.076",
		Longitude:     " 72.8777",
		Timezone:      "Asia/Kolkata",
		Offset:        "+05:30",
		OffsetRounded: "5.5",
	}

	data, err := f.Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.Name != "Ada" {
		t.Fatalf("name not trimmed: %q", data.Name)
	}
	if data.Latitude == nil || *data.Latitude != 19.076 || *data.Longitude != 72.8777 {
		t.Fatalf("coordinates not parsed: %+v", data)
	}
	if FormatOffset(*data.OffsetRounded) != "5.5" {
		t.Fatalf("offset precision lost: %v", *data.OffsetRounded)
	}
	if err := data.Validate(); err != nil {
		t.Fatalf("parsed form should validate: %v", err)
	}
}

func TestBirthFormParseRejectsNonNumbers(t *testing.T) {
	_, err := BirthForm{Latitude: "north", Longitude: "1", OffsetRounded: "five"}.Parse()

	var e *Error
	if !errors.As(err, &e) || e.Kind != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if e.Field != "latitude" || e.Message != "Latitude must be a number." {
		t.Fatalf("unexpected first field %q: %q", e.Field, e.Message)
	}
	if e.FieldErrors["offset_round"] != "Timezone offset must be a number." {
		t.Fatalf("unexpected field errors %v", e.FieldErrors)
	}

	for _, raw := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity"} {
		_, err := BirthForm{Latitude: "1", Longitude: "2", OffsetRounded: raw}.Parse()
		if !errors.As(err, &e) || e.Field != "offset_round" || e.Message != "Timezone offset must be a number." {
			t.Fatalf("%q: expected offset_round validation error, got %v", raw, err)
		}
	}
}

func TestBirthFormEmptyNumbersAreMissing(t *testing.T) {
	data, err := BirthForm{Name: "Ada", BirthDate: "1990-08-15", BirthTime: "14:30", Timezone: "UTC", Longitude: "0"}.Parse()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = data.Validate()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if e.Field != "latitude" || e.Message != "Latitude is required." {
		t.Fatalf("unexpected error %q: %q", e.Field, e.Message)
	}
	if _, ok := e.FieldErrors["longitude"]; ok {
		t.Fatalf("longitude 0 is a valid value")
	}
}

func TestBirthDataValidateMessages(t *testing.T) {
	lat, lon := 91.0, -181.0
	data := BirthData{
		BirthDate: "15/08/1990",
		BirthTime: "2pm",
		Latitude:  &lat,
		Longitude: &lon,
	}

	err := data.Validate()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *Error, got %v", err)
	}

	want := map[string]string{
		"name":       "Name is required.",
		"birth_date": "Please enter a valid birth date.",
		"birth_time": "Please enter a valid birth time.",
		"latitude":   "Latitude must be between -90 and 90.",
		"longitude":  "Longitude must be between -180 and 180.",
		"timezone":   "Timezone is required.",
	}
	for field, msg := range want {
		if got := e.FieldErrors[field]; got != msg {
			t.Fatalf("%s: got %q, want %q", field, got, msg)
		}
	}
	if e.Field != "name" {
		t.Fatalf("first field should be name, got %q", e.Field)
	}
}
