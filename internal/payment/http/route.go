package http

import (
	"github.com/gin-gonic/gin"
)

func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware gin.HandlerFunc) {
	group := g.Group("/payments")

	// === Gateway Routes ===
	group.POST("/webhook", h.Webhook)

	// === Authenticated Routes ===
	authed := group.Group("", authMiddleware)
	{
		authed.GET("", h.History)
		authed.POST("/orders", h.CreateOrder)
		authed.POST("/verify", h.Verify)
	}
}
