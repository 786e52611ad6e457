package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/adapter/api/middleware"
	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

// versionRequest carries the optional optimistic concurrency guard. Zero
// means the caller does not care which version it acts on.
type versionRequest struct {
	ExpectedVersion int64 `json:"expected_version" validate:"gte=0"`
}

func actorOf(c echo.Context) (entity.Actor, error) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		return entity.Actor{}, errors.Unauthorized("Authentication required", nil)
	}
	return actor, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return errors.BadRequest("Invalid request body", err)
	}
	return c.Validate(req)
}

func queryInt(c echo.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return fallback
	}
	return v
}
