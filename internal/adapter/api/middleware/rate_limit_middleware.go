package middleware

import (
	"fmt"
	"log"
	"math"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/infrastructure/ratelimit"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
)

// RateLimit throttles requests per client IP under the given action's rule.
func RateLimit(limiter *ratelimit.RateLimiter, action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if allowed, wait := limiter.Allow("ip:"+ip, action); !allowed {
				log.Printf("RATE LIMIT: Blocked %s request from IP %s (retry in %v)", action, ip, wait)
				c.Response().Header().Set("Retry-After", fmt.Sprint(int(math.Ceil(wait.Seconds()))))
				return response.Error(c, errors.TooManyRequests("Rate limit exceeded"))
			}
			return next(c)
		}
	}
}
