package handler

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/infrastructure/firebase"
	"univmarket/internal/usecase"
	"univmarket/pkg/logger"
	"univmarket/pkg/response"
)

// DevTokenHandler hands out dev-<uid> tokens so local clients can chat without Firebase.
// Only mounted in development.
type DevTokenHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewDevTokenHandler(userUseCase *usecase.UserUseCase) *DevTokenHandler {
	return &DevTokenHandler{
		userUseCase: userUseCase,
	}
}

type devTokenRequest struct {
	UserID   string `json:"user_id" validate:"required,alphanum,max=64"`
	Nickname string `json:"nickname" validate:"required,min=2,max=30"`
}

// GenerateUserToken creates or updates the user and returns a token for them.
func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	var req devTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	user, err := h.userUseCase.UpdateProfile(c.Request().Context(), req.UserID, usecase.UpdateProfileInput{
		Nickname: req.Nickname,
	})
	if err != nil {
		return response.Error(c, err)
	}

	logger.Debug("Issued dev token for %s", user.ID)
	return response.Created(c, map[string]interface{}{
		"token": firebase.DevTokenPrefix + user.ID,
		"user":  user,
	})
}
