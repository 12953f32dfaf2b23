package router

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
)

func SetupUserRouter(e *echo.Echo, userHandler *handler.UserHandler, authMiddleware *middleware.AuthMiddleware) {
	users := e.Group("/v1/users")
	users.Use(authMiddleware.Authenticate)

	users.GET("/me", userHandler.GetProfile)
	users.PUT("/me", userHandler.UpdateProfile)
}

// SetupDevRouter mounts routes that must never exist outside development.
func SetupDevRouter(e *echo.Echo, devTokenHandler *handler.DevTokenHandler) {
	if devTokenHandler == nil {
		return
	}
	dev := e.Group("/v1/dev")
	dev.POST("/token", devTokenHandler.GenerateUserToken)
}
