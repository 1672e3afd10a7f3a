// Package main is the entry point for the Sentinel server. It loads
// configuration, opens the credential store, wires the plugins together,
// and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/keyxmakerx/sentinel/internal/app"
	"github.com/keyxmakerx/sentinel/internal/config"
	"github.com/keyxmakerx/sentinel/internal/database"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	// Configure structured logging based on environment.
	setupLogging(cfg)

	slog.Info("starting Sentinel",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
		slog.String("db_driver", cfg.Database.Driver),
	)

	// --- Open the credential store ---
	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		slog.Error("failed to open credential store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	// --- Connect to Redis (optional) ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	cancel()
	if err != nil {
		slog.Error("failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
		slog.Info("connected to Redis")
	} else {
		slog.Info("redis not configured, rate limits are per process")
	}

	// --- Create Application ---
	application := app.New(cfg, store, rdb)
	authSvc, err := application.RegisterRoutes()
	if err != nil {
		slog.Error("failed to register routes", slog.Any("error", err))
		os.Exit(1)
	}
	if cfg.Auth.SecretKey == "" && !cfg.IsDevelopment() {
		slog.Warn("SECRET_ENCRYPTION_KEY is not set, TOTP secrets are stored in plaintext")
	}

	if _, err := authSvc.Bootstrap(context.Background(), cfg.Auth.BootstrapAdminID, cfg.Auth.BootstrapAdminPassword); err != nil {
		slog.Error("failed to bootstrap administrator", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Graceful Shutdown ---
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		// Give in-flight requests 10 seconds to complete.
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(ctx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	// --- Start Server ---
	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// setupLogging configures the global slog logger based on the environment.
// Development uses text format for readability. Production uses JSON for
// structured log aggregation. LOG_LEVEL overrides the default level.
func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		var parsed slog.Level
		if err := parsed.UnmarshalText([]byte(strings.ToLower(cfg.LogLevel))); err == nil {
			level = parsed
		}
	}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	slog.SetDefault(slog.New(handler))
}
