package handler

import (
	"context"
	"log"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	ws "campaignhub/internal/infrastructure/websocket"
	"campaignhub/pkg/response"
)

type WebSocketHandler struct {
	ctx       context.Context
	wsManager *ws.Manager
	upgrader  gorillaws.Upgrader
}

// NewWebSocketHandler ties client pumps to ctx, the server's lifetime, rather
// than to the upgrade request.
func NewWebSocketHandler(ctx context.Context, wsManager *ws.Manager, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		ctx:       ctx,
		wsManager: wsManager,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

func (h *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	actor, err := actorOf(c)
	if err != nil {
		return response.Error(c, err)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WebSocket: upgrade failed for user %s: %v", actor.ID, err)
		return nil
	}

	client := ws.NewClient(actor, conn)
	h.wsManager.Register(client)

	go client.ReadPump(h.ctx, h.wsManager)
	go client.WritePump()

	return nil
}
