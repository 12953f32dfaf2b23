package api

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"

	"univmarket/internal/adapter/api/handler"
	"univmarket/internal/adapter/api/middleware"
	"univmarket/internal/adapter/api/router"
	"univmarket/internal/domain/repository"
	"univmarket/internal/infrastructure/ratelimit"
	ws "univmarket/internal/infrastructure/websocket"
	"univmarket/internal/usecase"
	"univmarket/pkg/response"
)

type ServerDeps struct {
	ChatRepo    repository.ChatRepository
	ProductRepo repository.ProductRepository
	UserRepo    repository.UserRepository

	Verifier    middleware.TokenVerifier
	RateLimiter *ratelimit.RateLimiter
	WSManager   *ws.Manager

	StorageName    string
	AllowedOrigins []string
	RequestLogging bool
	// DevRoutes mounts /v1/dev, which issues tokens to anyone.
	DevRoutes bool
}

// NewServer wires use cases, handlers and routes into an echo instance.
func NewServer(d ServerDeps) *echo.Echo {
	if d.RateLimiter == nil {
		d.RateLimiter = ratelimit.NewRateLimiter()
	}
	if d.WSManager == nil {
		d.WSManager = ws.NewManager()
	}

	chatUseCase := usecase.NewChatUseCase(d.ChatRepo, d.UserRepo, d.ProductRepo, d.WSManager, d.RateLimiter)
	productUseCase := usecase.NewProductUseCase(d.ProductRepo, d.UserRepo, d.RateLimiter)
	userUseCase := usecase.NewUserUseCase(d.UserRepo)
	d.WSManager.SetChatService(chatUseCase)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = response.ErrorHandler
	e.Validator = NewValidator()

	if d.RequestLogging {
		e.Use(echomiddleware.Logger())
	}
	e.Use(echomiddleware.Recover())
	if len(d.AllowedOrigins) > 0 {
		e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{AllowOrigins: d.AllowedOrigins}))
	} else {
		e.Use(echomiddleware.CORS())
	}
	e.Use(middleware.RateLimit(d.RateLimiter))

	authMiddleware := middleware.NewAuthMiddleware(d.Verifier)

	handlers := router.Handlers{
		Health:    handler.NewHealthHandler(d.StorageName),
		Chat:      handler.NewChatHandler(chatUseCase),
		Product:   handler.NewProductHandler(productUseCase),
		User:      handler.NewUserHandler(userUseCase),
		WebSocket: handler.NewWebSocketHandler(d.WSManager, d.AllowedOrigins),
	}
	if d.DevRoutes {
		handlers.DevToken = handler.NewDevTokenHandler(userUseCase)
	}
	router.Setup(e, handlers, authMiddleware)

	return e
}
