package handler

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/usecase"
	"univmarket/pkg/response"
)

type UserHandler struct {
	userUseCase *usecase.UserUseCase
}

func NewUserHandler(userUseCase *usecase.UserUseCase) *UserHandler {
	return &UserHandler{
		userUseCase: userUseCase,
	}
}

type updateProfileRequest struct {
	Nickname string `json:"nickname" validate:"required,min=2,max=30"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	user, err := h.userUseCase.GetUserProfile(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	var req updateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	user, err := h.userUseCase.UpdateProfile(c.Request().Context(), userID, usecase.UpdateProfileInput{
		Nickname: req.Nickname,
		Email:    req.Email,
	})
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, user)
}
