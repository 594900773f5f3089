package dedup

import (
	"github.com/labstack/echo/v4"

	"github.com/felinebridge/cockpit/pkg/auth"
)

// RegisterRoutes registers the dedup review queue routes. Reads need any
// authenticated user; resolution is admin-gated.
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware) {
	for _, prefix := range []string{"/api/dedup", "/dedup"} {
		g := e.Group(prefix)
		g.Use(authMiddleware.RequireAuth())

		g.GET("/:entityType", h.ListCandidates)
		g.GET("/:entityType/audit", h.ListAudit)
		g.GET("/:entityType/:candidateID/preview", h.Preview)
		g.POST("/:entityType", h.Resolve, authMiddleware.RequireRole(auth.RoleAdmin))
	}
}
