package router

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
)

type Handlers struct {
	Health    *handler.HealthHandler
	Chat      *handler.ChatHandler
	Product   *handler.ProductHandler
	User      *handler.UserHandler
	WebSocket *handler.WebSocketHandler

	// nil outside development
	DevToken *handler.DevTokenHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/health", h.Health.CheckHealth)

	SetupChatRouter(e, h.Chat, authMiddleware)
	SetupProductRouter(e, h.Product, authMiddleware)
	SetupUserRouter(e, h.User, authMiddleware)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
	SetupDevRouter(e, h.DevToken)
}
