package account

import (
	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/sentinel/internal/middleware"
)

// RegisterRoutes sets up login and logout. Login attempts are limited per
// client IP by the given limiter.
func RegisterRoutes(e *echo.Echo, h *Handler, limiter middleware.Limiter, loginLimit int) {
	e.Any("/api/login", h.Login(), middleware.RateLimit(limiter, "login", loginLimit))
	e.Any("/api/logout", h.Logout())
}
