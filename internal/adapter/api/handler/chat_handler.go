package handler

import (
	"github.com/labstack/echo/v4"

	"univmarket/internal/usecase"
	"univmarket/pkg/response"
	"univmarket/pkg/utils"
)

type ChatHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewChatHandler(chatUseCase *usecase.ChatUseCase) *ChatHandler {
	return &ChatHandler{
		chatUseCase: chatUseCase,
	}
}

type createChatRoomRequest struct {
	ProductID string `json:"product_id" validate:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

// CreateChatRoom opens (or returns) the caller's room for a product.
func (h *ChatHandler) CreateChatRoom(c echo.Context) error {
	var req createChatRoomRequest
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

	room, err := h.chatUseCase.CreateChatRoom(c.Request().Context(), userID, req.ProductID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, room)
}

func (h *ChatHandler) GetUserChatRooms(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	rooms, err := h.chatUseCase.ListUserChatRooms(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	pagination := utils.GetPaginationParams(c)
	start, end := pagination.Window(len(rooms))
	return response.Paginated(c, rooms[start:end], int64(len(rooms)), pagination.Page, pagination.PageSize)
}

func (h *ChatHandler) GetChatRoom(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	room, err := h.chatUseCase.GetChatRoom(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, room)
}

// GetChatMessages returns the complete history, oldest first. There is no paging.
func (h *ChatHandler) GetChatMessages(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return response.Error(c, err)
	}

	messages, err := h.chatUseCase.GetChatMessages(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, messages)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
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

	message, err := h.chatUseCase.SendMessage(c.Request().Context(), userID, c.Param("id"), req.Content, "")
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}
