package router

import (
	"github.com/labstack/echo/v4"

	"campaignhub/internal/adapter/api/handler"
	"campaignhub/internal/adapter/api/middleware"
	"campaignhub/internal/infrastructure/ratelimit"
)

// Handlers groups everything the routers mount.
type Handlers struct {
	Room      *handler.RoomHandler
	Contract  *handler.ContractHandler
	Milestone *handler.MilestoneHandler
	WebSocket *handler.WebSocketHandler
	Health    *handler.HealthHandler
}

func Setup(e *echo.Echo, h Handlers, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	v1 := e.Group("/v1", middleware.RateLimit(limiter, ratelimit.ActionAPI), authMiddleware.Authenticate)

	SetupRoomRouter(v1, h.Room)
	SetupContractRouter(v1, h.Contract, h.Milestone)
	SetupWebSocketRouter(e, h.WebSocket, authMiddleware)
	SetupHealthRouter(e, h.Health)
}
