package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// errorResponse is the body of every failed API call.
type errorResponse struct {
	ErrorCode      string            `json:"errorCode"`
	Message        string            `json:"message"`
	FieldErrors    map[string]string `json:"fieldErrors,omitempty"`
	UpstreamStatus int               `json:"upstreamStatus,omitempty"`
}

var kindStatus = map[natal.Kind]int{
	natal.KindValidation:        fiber.StatusBadRequest,
	natal.KindAuthNotConfigured: fiber.StatusServiceUnavailable,
	natal.KindRateLimitExceeded: fiber.StatusTooManyRequests,
	natal.KindUpstreamTimeout:   fiber.StatusGatewayTimeout,
	natal.KindNetwork:           fiber.StatusBadGateway,
	natal.KindUpstream:          fiber.StatusBadGateway,
	natal.KindParse:             fiber.StatusBadGateway,
}

// ErrorHandler renders gateway errors with their kind and Fiber errors with
// their status code. Anything else is an internal error.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var ne *natal.Error
	if errors.As(err, &ne) {
		code, ok := kindStatus[ne.Kind]
		if !ok {
			code = fiber.StatusInternalServerError
		}
		return c.Status(code).JSON(errorResponse{
			ErrorCode:      string(ne.Kind),
			Message:        ne.Message,
			FieldErrors:    ne.FieldErrors,
			UpstreamStatus: ne.Status,
		})
	}

	code := fiber.StatusInternalServerError
	message := "Internal server error."
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	return c.Status(code).JSON(errorResponse{
		ErrorCode: errorCode(code),
		Message:   message,
	})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return "bad_request"
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusForbidden:
		return "forbidden"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "payload_too_large"
	case fiber.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	default:
		return "internal_error"
	}
}
