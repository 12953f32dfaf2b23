package middleware

import (
	"fmt"
	"math"

	"github.com/labstack/echo/v4"

	"univmarket/internal/infrastructure/ratelimit"
	"univmarket/pkg/errors"
	"univmarket/pkg/logger"
)

// RateLimit throttles requests per client IP using limiter's http_request policy.
func RateLimit(limiter *ratelimit.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			allowed, wait := limiter.Allow(ip, ratelimit.ActionHTTPRequest)
			if !allowed {
				logger.Warn("RATE LIMIT: Blocked request from IP %s (retry in %v)", ip, wait)
				c.Response().Header().Set("Retry-After", fmt.Sprint(int(math.Ceil(wait.Seconds()))))
				return errors.TooManyRequests("Rate limit exceeded", nil)
			}
			return next(c)
		}
	}
}
