package router

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
)

func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/v1/ws", wsHandler.HandleWebSocket, authMiddleware.AuthenticateWebSocket)
}
