package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/i474232898/natal-chart-gateway/internal/natal"
)

// NewApp builds the Fiber application with its middleware, health and
// metrics endpoints, and the API routes.
func NewApp(gw *natal.Gateway, opts Options) *fiber.App {
	writeTimeout := 10 * time.Second
	if opts.UpstreamTimeout > 0 {
		writeTimeout = opts.UpstreamTimeout + 5*time.Second
	}

	app := fiber.New(fiber.Config{
		AppName:               "natal-chart-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          writeTimeout,
		ErrorHandler:          ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	if opts.RequestLogging {
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(recover.New())
	app.Use(MetricsMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":     "ok",
			"service":    "natal-chart-gateway",
			"configured": gw.Status().Configured,
		})
	})
	app.Get("/metrics", MetricsHandler())

	RegisterRoutes(app, gw, opts)
	return app
}
