package handler

import (
	"github.com/labstack/echo/v4"

	"univmarket/pkg/errors"
)

// currentUser returns the uid set by the auth middleware.
func currentUser(c echo.Context) (string, error) {
	uid, ok := c.Get("uid").(string)
	if !ok || uid == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	return uid, nil
}
