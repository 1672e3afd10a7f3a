package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// TokenHeader is the request header that may carry the bearer token.
const TokenHeader = "token"

// CORSConfig holds configuration for the CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the front-end origins that may call the API.
	AllowedOrigins []string

	// AllowCredentials lets the browser send the session cookie cross-origin.
	// A separately hosted front end needs it: the cookie and the token are
	// both required to authenticate.
	AllowCredentials bool
}

// CORS returns echo's CORS middleware configured for the session API: the
// token header is allowed on requests and Retry-After is readable on 429s.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	if slices.Contains(cfg.AllowedOrigins, "*") && cfg.AllowCredentials {
		slog.Warn("CORS: wildcard origin cannot be combined with credentials; credentials disabled")
		cfg.AllowCredentials = false
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders: []string{
			echo.HeaderContentType,
			echo.HeaderAuthorization,
			TokenHeader,
		},
		ExposeHeaders:    []string{echo.HeaderRetryAfter, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           3600,
	})
}
