package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/astroveda/consult/internal/handlers"
	"github.com/astroveda/consult/internal/middlewares"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	sessionHandler *handlers.SessionHandler,
	walletHandler *handlers.WalletHandler,
	jwtSecret string,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(jwtSecret))

	protected.POST("/sessions/start", sessionHandler.StartSession)
	protected.GET("/sessions/active", sessionHandler.ListActiveSessions)
	protected.GET("/sessions/:id", sessionHandler.GetSession)
	protected.POST("/sessions/:id/end", sessionHandler.EndSession)

	protected.GET("/wallet/balance", walletHandler.GetBalance)
	protected.POST("/wallet/add-funds", walletHandler.AddFunds)
}
