// Copyright (c) 2025 Justin Cranford

// Package apiserver assembles the Fiber application: middleware (request
// id, OpenTelemetry request spans and metrics, logging, rate limiting),
// the core auth routes from apihandler, and the embedded OpenAPI document
// with its Swagger UI.
package apiserver

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/swagger"

	"github.com/arkaitz-dev/hashrand-sub003/internal/apihandler"
	"github.com/arkaitz-dev/hashrand-sub003/internal/config"
	"github.com/arkaitz-dev/hashrand-sub003/internal/telemetry"
)

//go:embed openapi.yaml
var openAPISpec []byte

// FiberHandlerOpenAPISpec exposes the embedded OpenAPI spec; the Swagger UI
// needs it to render the APIs.
func FiberHandlerOpenAPISpec() func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "application/yaml")
		return c.Status(http.StatusOK).Send(openAPISpec)
	}
}

// Server owns the Fiber app and its listen address.
type Server struct {
	App  *fiber.App
	addr string
}

// New wires middleware and routes into a Fiber app. Rate limiting applies
// to /login/ issuance only, and only delays/drops excess requests — it
// never changes the success response, preserving the no-user-enumeration
// property.
func New(cfg *config.Config, handlers *apihandler.Service, tel *telemetry.TelemetryService) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must be non-nil")
	}
	if handlers == nil {
		return nil, errors.New("handler service must be non-nil")
	}
	if tel == nil {
		return nil, errors.New("telemetry service must be non-nil")
	}

	app := fiber.New(fiber.Config{
		AppName:               "hashrand-auth-core",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	app.Use(apihandler.RequestID())
	app.Use(otelfiber.Middleware(
		otelfiber.WithTracerProvider(tel.TracesProvider),
		otelfiber.WithMeterProvider(tel.MetricsProvider),
	))
	app.Use(apihandler.RequestLogger(tel.Slogger))

	loginLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.SendStatus(http.StatusTooManyRequests)
		},
	})

	app.Post("/login/", loginLimiter, handlers.PostLogin)
	app.Post("/login/magiclink/", handlers.PostLoginMagicLink)
	app.Post("/refresh", handlers.PostRefresh)
	app.Delete("/login", handlers.RequireAuth(), handlers.DeleteLogin)
	app.Get("/version", handlers.GetVersion)
	app.Get("/healthz", handlers.GetHealthz)

	app.Get("/openapi.yaml", FiberHandlerOpenAPISpec())
	app.Get("/docs/*", swagger.New(swagger.Config{URL: "/openapi.yaml"}))

	return &Server{
		App:  app,
		addr: fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
	}, nil
}

// Listen blocks serving HTTP until Shutdown is called or the listener
// fails to bind.
func (s *Server) Listen() error {
	return s.App.Listen(s.addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown() error {
	return s.App.Shutdown()
}
