package github

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the GitHub login redirect and callback.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	g := e.Group("/auth")
	g.GET("/github_login", h.Login)
	g.GET("/github_callback", h.Callback)
}
