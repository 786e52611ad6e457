package middleware

import (
	"github.com/labstack/echo/v4"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
)

// AdminOnly must run after Authenticate.
func AdminOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		if !ok {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}
		if actor.Role != entity.RoleAdmin {
			return response.Error(c, errors.Forbidden("Admin privileges required", nil))
		}
		return next(c)
	}
}
