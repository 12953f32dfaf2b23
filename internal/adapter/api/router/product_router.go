package router

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
)

func SetupProductRouter(e *echo.Echo, productHandler *handler.ProductHandler, authMiddleware *middleware.AuthMiddleware) {
	products := e.Group("/v1/products")
	products.GET("/:id", productHandler.GetProduct)

	products.POST("", productHandler.CreateProduct, authMiddleware.Authenticate)
	products.PUT("/:id/reserve", productHandler.ReserveProduct, authMiddleware.Authenticate)
	products.PUT("/:id/complete", productHandler.CompleteTransaction, authMiddleware.Authenticate)
}
