package router

import (
	"github.com/labstack/echo/v4"

	"campaignhub/internal/adapter/api/handler"
	"campaignhub/internal/adapter/api/middleware"
)

// SetupWebSocketRouter mounts the realtime endpoint. The token may come as a
// query parameter since browsers cannot set headers on the upgrade.
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware) {
	e.GET("/ws", wsHandler.HandleWebSocket, authMiddleware.Authenticate)
	e.GET("/v1/ws", wsHandler.HandleWebSocket, authMiddleware.Authenticate)
}
