package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
	"github.com/i474232898/natal-chart-gateway/internal/ratelimit"
)

const (
	csrfHeader     = "X-Csrf-Token"
	csrfCookie     = "csrf_"
	csrfContextKey = "csrf"
	adminKeyHeader = "X-Admin-Key"
)

// Options configures the API surface.
type Options struct {
	// AdminAPIKey guards POST /status/test. Empty disables the endpoint.
	AdminAPIKey string
	// CookieSecure marks the anti-forgery cookie Secure.
	CookieSecure bool
	// UpstreamTimeout bounds provider calls; the server write timeout is
	// derived from it.
	UpstreamTimeout time.Duration
	// RequestLogging enables Fiber's access log.
	RequestLogging bool
	Logger         *zap.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, gw *natal.Gateway, opts Options) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	v1 := app.Group("/api/v1")

	// One instance so tokens issued by /session are accepted by the POSTs.
	protect := csrf.New(csrf.Config{
		KeyLookup:      "header:" + csrfHeader,
		CookieName:     csrfCookie,
		CookieSameSite: "Lax",
		CookieSecure:   opts.CookieSecure,
		Expiration:     time.Hour,
		KeyGenerator:   uuid.NewString,
		ContextKey:     csrfContextKey,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return fiber.NewError(fiber.StatusForbidden, "Security check failed.")
		},
	})

	v1.Get("/session", protect, func(c *fiber.Ctx) error {
		token, _ := c.Locals(csrfContextKey).(string)
		return c.JSON(fiber.Map{
			"csrfToken": token,
			"header":    csrfHeader,
		})
	})

	v1.Post("/locations/search", protect, func(c *fiber.Ctx) error {
		var req searchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		results, err := gw.SearchLocations(c.UserContext(), clientID(c), req.Query)
		if err != nil {
			return err
		}
		if results == nil {
			results = []natal.LocationRecord{}
		}

		return c.JSON(fiber.Map{
			"results": results,
			"count":   len(results),
		})
	})

	v1.Post("/charts", protect, func(c *fiber.Ctx) error {
		var form natal.BirthForm
		if err := c.BodyParser(&form); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		data, err := form.Parse()
		if err != nil {
			return err
		}

		result, err := gw.GenerateChart(c.UserContext(), clientID(c), data)
		if err != nil {
			return err
		}
		return c.JSON(result)
	})

	v1.Get("/status", func(c *fiber.Ctx) error {
		resp := fiber.Map{"status": gw.Status()}

		usage, err := gw.RateLimitUsage(c.UserContext(), clientID(c))
		if err != nil {
			log.Warn("rate limit usage unavailable", zap.Error(err))
		} else {
			resp["usage"] = usage
		}
		return c.JSON(resp)
	})

	if opts.AdminAPIKey == "" {
		log.Info("admin api key not set; connection test endpoint disabled")
		return
	}

	wantKey := sha256.Sum256([]byte(opts.AdminAPIKey))
	admin := keyauth.New(keyauth.Config{
		KeyLookup: "header:" + adminKeyHeader,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			got := sha256.Sum256([]byte(key))
			if subtle.ConstantTimeCompare(got[:], wantKey[:]) == 1 {
				return true, nil
			}
			return false, keyauth.ErrMissingOrMalformedAPIKey
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid or missing admin API key.")
		},
	})

	v1.Post("/status/test", admin, func(c *fiber.Ctx) error {
		results, err := gw.TestConnection(c.UserContext(), clientID(c))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"message": "API connection successful!",
			"count":   len(results),
			"data":    results,
		})
	})
}

type searchRequest struct {
	Query string `json:"query" form:"query"`
}

func clientID(c *fiber.Ctx) string {
	return ratelimit.ClientID(
		c.Get("Client-IP"),
		c.Get(fiber.HeaderXForwardedFor),
		c.Context().RemoteAddr().String(),
	)
}
