package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	storage string
}

// NewHealthHandler reports which storage backend the server runs on.
func NewHealthHandler(storage string) *HealthHandler {
	return &HealthHandler{
		storage: storage,
	}
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"storage": h.storage,
		"time":    time.Now().Format(time.RFC3339),
	})
}
