// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (credential store, Redis client, Echo
// instance) and wires the plugins together.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/sentinel/internal/api"
	"github.com/keyxmakerx/sentinel/internal/config"
	"github.com/keyxmakerx/sentinel/internal/database"
	"github.com/keyxmakerx/sentinel/internal/middleware"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	// Config holds the loaded application configuration.
	Config *config.Config

	// Store is the credential store gateway shared by all plugins.
	Store *database.Store

	// Redis is optional; nil means rate limits are kept in process.
	Redis *redis.Client

	// Limiter counts login attempts per client IP.
	Limiter middleware.Limiter

	// Echo is the HTTP server instance.
	Echo *echo.Echo
}

// New creates a new App instance with the given dependencies and configures
// the Echo server with global middleware and error handling.
func New(cfg *config.Config, store *database.Store, rdb *redis.Client) *App {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// c.RealIP() must return the client behind a reverse proxy so login
	// limits apply per user rather than per proxy.
	middleware.TrustedProxies(e, cfg.TrustedProxies)

	e.Validator = api.NewValidator()
	e.HTTPErrorHandler = errorHandler

	app := &App{
		Config:  cfg,
		Store:   store,
		Redis:   rdb,
		Limiter: middleware.NewLimiter(rdb, time.Minute),
		Echo:    e,
	}
	app.setupMiddleware()
	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: the logger sees the final status, recovery sits inside it.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders(a.Config.Auth.CookieSecure))
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   []string{a.Config.BaseURL},
		AllowCredentials: true,
	}))
}

// errorHandler catches everything that escapes a handler: router misses,
// middleware rejections and panics. Operations inside the request envelope
// have already written their response.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if err := api.WriteError(c, err); err != nil {
		slog.Error("writing error response", slog.Any("error", err))
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Sentinel server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
