package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	// === Public Routes ===
	g.GET("/halls/:id/availability", h.Availability)

	group := g.Group("/bookings")

	// === Authenticated Routes ===
	group.Use(authMiddleware)
	{
		group.GET("", h.List)
		group.POST("", h.Create)
		group.GET("/:id", h.Get)
		group.POST("/:id/cancel", h.Cancel)
		group.POST("/:id/confirm", h.Confirm)
		group.POST("/:id/complete", h.Complete)
	}

	owner := g.Group("/owner", authMiddleware)
	{
		owner.GET("/bookings", h.ListForOwner)
		owner.GET("/stats", h.OwnerStats)
	}
}
