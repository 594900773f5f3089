package entities

import (
	"github.com/labstack/echo/v4"

	"github.com/felinebridge/cockpit/pkg/auth"
)

// RegisterRoutes registers entity lookup routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	g := e.Group("/api")
	g.Use(authMiddleware.RequireAuth())

	g.GET("/people/:id", h.GetPerson)
	g.GET("/places/:id", h.GetPlace)
}
