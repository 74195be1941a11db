package natal

import (
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindAuthNotConfigured Kind = "auth_not_configured"
	KindRateLimitExceeded Kind = "rate_limit_exceeded"
	KindUpstreamTimeout   Kind = "upstream_timeout"
	KindNetwork           Kind = "network_error"
	KindUpstream          Kind = "upstream_error"
	KindParse             Kind = "parse_error"
)

// Error is the structured error returned by the gateway and its providers.
// Message is safe to show to an end user; Err is kept for logs only.
type Error struct {
	Kind        Kind
	Message     string
	Status      int               // upstream HTTP status, KindUpstream only
	Field       string            // first offending field, KindValidation only
	FieldErrors map[string]string // all offending fields, KindValidation only
	Err         error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(field, message string) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     message,
		Field:       field,
		FieldErrors: map[string]string{field: message},
	}
}

// ErrQueryTooShort is returned for location queries under MinQueryLength characters.
func ErrQueryTooShort() *Error {
	return validationError("query", "Search query must be at least 2 characters long.")
}

// ErrAuthNotConfigured is returned when no bearer token is configured.
func ErrAuthNotConfigured() *Error {
	return &Error{
		Kind:    KindAuthNotConfigured,
		Message: "API bearer token not configured.",
	}
}

// ErrRateLimitExceeded is returned when the caller's quota is used up.
func ErrRateLimitExceeded() *Error {
	return &Error{
		Kind:    KindRateLimitExceeded,
		Message: "Rate limit exceeded. Please try again later.",
	}
}

// NewTimeoutError wraps a transport timeout.
func NewTimeoutError(err error) *Error {
	return &Error{
		Kind:    KindUpstreamTimeout,
		Message: "The location service did not respond in time. Please try again.",
		Err:     err,
	}
}

// NewNetworkError wraps a transport failure other than a timeout.
func NewNetworkError(message string, err error) *Error {
	if message == "" {
		message = "Could not reach the location service. Please try again later."
	}
	return &Error{
		Kind:    KindNetwork,
		Message: message,
		Err:     err,
	}
}

// NewUpstreamError reports a non-2xx provider response.
func NewUpstreamError(status int, message string) *Error {
	return &Error{
		Kind:    KindUpstream,
		Message: message,
		Status:  status,
	}
}

// NewParseError reports a success response whose body is not valid JSON.
func NewParseError(err error) *Error {
	return &Error{
		Kind:    KindParse,
		Message: "Invalid JSON response from API.",
		Err:     err,
	}
}
