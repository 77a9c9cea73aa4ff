package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/astroveda/consult/internal/handlers"
	"github.com/astroveda/consult/internal/middlewares"
)

func RegisterPublicEndpoints(
	router *gin.Engine,
	healthHandler *handlers.HealthHandler,
	astrologerHandler *handlers.AstrologerHandler,
	webSocketHandler *handlers.WebSocketHandler,
	participants middlewares.ParticipantChecker,
	jwtSecret string,
) {
	router.GET("/health", healthHandler.Health)

	public := router.Group("/api")
	public.GET("/astrologers/:id", astrologerHandler.GetProfile)

	// Signaling relay. Browsers cannot send headers on the upgrade, so the
	// middleware reads the token from the query string.
	wsAuth := middlewares.WebSocketAuthMiddleware(jwtSecret, participants)
	router.GET("/ws/:session_id/:user_id", wsAuth, webSocketHandler.HandleWebSocket)
}
