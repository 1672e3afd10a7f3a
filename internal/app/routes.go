package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/api"
	"github.com/keyxmakerx/sentinel/internal/apperror"
	"github.com/keyxmakerx/sentinel/internal/plugins/account"
	"github.com/keyxmakerx/sentinel/internal/plugins/auth"
	"github.com/keyxmakerx/sentinel/internal/plugins/github"
	"github.com/keyxmakerx/sentinel/internal/plugins/users"
)

// RegisterRoutes builds the services and sets up all application routes.
// This is the single place where plugin routes are aggregated. The returned
// AuthService is the one the handlers share.
func (a *App) RegisterRoutes() (auth.AuthService, error) {
	e := a.Echo
	cfg := a.Config

	// --- Services ---
	userRepo, err := auth.NewUserRepository(a.Store, auth.WithSecretKey(cfg.Auth.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("creating user repository: %w", err)
	}
	sessionRepo := auth.NewSessionRepository(a.Store)
	authSvc := auth.NewAuthService(userRepo, sessionRepo, a.Store, auth.Options{
		BcryptCost:     cfg.Auth.BcryptCost,
		RotationStrict: cfg.Auth.RotationStrict,
	})
	env := api.New(authSvc, a.Store)

	// --- Public Routes ---
	e.GET("/healthz", a.health)

	// --- Plugin Routes ---
	account.RegisterRoutes(e, account.NewHandler(authSvc, env, cfg.Auth.CookieSecure), a.Limiter, cfg.Auth.LoginRateLimit)

	userSvc := users.NewUserService(userRepo, sessionRepo, cfg.Auth.BcryptCost)
	users.RegisterRoutes(e, users.NewHandler(userSvc, authSvc, env))

	if cfg.GitHub.Enabled() {
		github.RegisterRoutes(e, github.NewHandler(github.NewProvider(cfg.GitHub), authSvc, a.Store, cfg.Auth.CookieSecure))
		slog.Info("github login enabled")
	}

	return authSvc, nil
}

// health reports whether the credential store (and Redis, when configured)
// answers.
func (a *App) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := a.Store.Ping(ctx); err != nil {
		return apperror.NewInternal(err)
	}
	status := map[string]string{"status": "ok", "store": "ok"}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			// Rate limiting degrades to in-process counters; still healthy.
			status["redis"] = "unavailable"
		} else {
			status["redis"] = "ok"
		}
	}
	return c.JSON(http.StatusOK, status)
}
