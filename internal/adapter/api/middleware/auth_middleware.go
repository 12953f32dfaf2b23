package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"univmarket/pkg/errors"
)

// TokenVerifier turns a bearer token into a user id.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
}

func NewAuthMiddleware(verifier TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			return errors.Unauthorized("Authorization header is required", nil)
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			return errors.Unauthorized("Invalid authorization format", nil)
		}

		return m.verify(c, token, next)
	}
}

// AuthenticateWebSocket also accepts ?token= since browsers cannot set headers on upgrade.
func (m *AuthMiddleware) AuthenticateWebSocket(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if token, ok := bearerToken(c.Request().Header.Get("Authorization")); ok {
			return m.verify(c, token, next)
		}
		if token := c.QueryParam("token"); token != "" {
			return m.verify(c, token, next)
		}
		return errors.Unauthorized("Authentication required", nil)
	}
}

func (m *AuthMiddleware) verify(c echo.Context, token string, next echo.HandlerFunc) error {
	uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
	if err != nil {
		return errors.Unauthorized("Invalid or expired token", err)
	}

	c.Set("uid", uid)
	return next(c)
}

func bearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
