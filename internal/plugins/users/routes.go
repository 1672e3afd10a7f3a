package users

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the user registry API and views. API routes accept
// every method so the envelope can answer a wrong one with 405.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.Any("/api/addUser", h.AddUser())
	e.Any("/api/modifyUser", h.ModifyUser())
	e.Any("/api/removeUser", h.RemoveUser())

	views := e.Group("/views")
	views.GET("/index", h.Index)
	views.GET("/users/:userId", h.User)
	views.GET("/addUser", h.AddUserForm)
	views.GET("/about", h.About)
}
