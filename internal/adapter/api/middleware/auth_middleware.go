package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"campaignhub/internal/domain/entity"
	"campaignhub/internal/domain/repository"
	"campaignhub/internal/infrastructure/auth"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/response"
)

const actorKey = "actor"

type AuthMiddleware struct {
	verifier auth.TokenVerifier
	userRepo repository.UserRepository
}

func NewAuthMiddleware(verifier auth.TokenVerifier, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		userRepo: userRepo,
	}
}

// Authenticate resolves the bearer token to a user and stores the actor in
// the echo context. Browsers cannot set headers on websocket upgrades, so a
// token query parameter is accepted as well.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		uid, err := m.verifier.VerifyToken(c.Request().Context(), token)
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		user, err := m.userRepo.GetByID(c.Request().Context(), uid)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return response.Error(c, errors.Unauthorized("Unknown user", err))
			}
			return response.Error(c, err)
		}

		c.Set("uid", user.ID)
		c.Set(actorKey, entity.Actor{ID: user.ID, Role: user.Role})
		return next(c)
	}
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if header == "" {
		return c.QueryParam("token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ActorFrom returns the actor stored by Authenticate.
func ActorFrom(c echo.Context) (entity.Actor, bool) {
	actor, ok := c.Get(actorKey).(entity.Actor)
	return actor, ok && actor.ID != ""
}
