package hub

import "github.com/gin-gonic/gin"

func RegisterHubRoutes(r *gin.Engine, wsHandler *WSHandler, webhookHandler *WebhookHandler) {
	r.GET("/ws/events", wsHandler.Handle)

	events := r.Group("/events")
	{
		events.POST("/webhook", webhookHandler.HandlePost)
		events.OPTIONS("/webhook", webhookHandler.HandleOptions)
	}
}
