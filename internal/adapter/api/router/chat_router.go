package router

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
)

// SetupChatRouter sets up the REST side of chat. The live channel is in SetupWebSocketRouter.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware) {
	chatGroup := e.Group("/v1/chat/rooms")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChatRoom)
	chatGroup.GET("", chatHandler.GetUserChatRooms)
	chatGroup.GET("/:id", chatHandler.GetChatRoom)
	chatGroup.POST("/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/:id/messages", chatHandler.GetChatMessages)
}
