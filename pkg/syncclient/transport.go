package syncclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"campaignhub/internal/domain/entity"
	ws "campaignhub/internal/infrastructure/websocket"
	"campaignhub/pkg/errors"
	"campaignhub/pkg/logger"
)

// Event is a room event as received from the live channel. Data stays raw
// until the session knows which payload type to expect.
type Event struct {
	Type       entity.EventType `json:"type"`
	RoomID     string           `json:"room_id"`
	ContractID string           `json:"contract_id,omitempty"`
	ActorID    string           `json:"actor_id,omitempty"`
	Data       json.RawMessage  `json:"data"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Transport is the live tail of subscribed rooms. It never replays history.
type Transport interface {
	Subscribe(roomID string) error
	Unsubscribe(roomID string) error
	SetTyping(roomID string, typing bool) error
	Events() <-chan Event
	// Reconnected fires after every successful connect. Subscriptions do not
	// survive a reconnect, so the receiver must subscribe again.
	Reconnected() <-chan struct{}
}

const (
	clientWriteWait   = 10 * time.Second
	clientReadTimeout = 90 * time.Second
)

type WSOptions struct {
	Dialer     *websocket.Dialer
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// WSTransport is a Transport over the server's /v1/ws endpoint. Run owns the
// connection and redials with exponential backoff until its context ends.
type WSTransport struct {
	url        string
	header     http.Header
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration

	events      chan Event
	reconnected chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWSTransport(url, token string, opts WSOptions) *WSTransport {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	return &WSTransport{
		url:         url,
		header:      header,
		dialer:      opts.Dialer,
		minBackoff:  opts.MinBackoff,
		maxBackoff:  opts.MaxBackoff,
		events:      make(chan Event, 256),
		reconnected: make(chan struct{}, 1),
	}
}

func (t *WSTransport) Events() <-chan Event { return t.events }

func (t *WSTransport) Reconnected() <-chan struct{} { return t.reconnected }

// Run blocks until ctx is done.
func (t *WSTransport) Run(ctx context.Context) error {
	backoff := t.minBackoff
	for {
		conn, _, err := t.dialer.DialContext(ctx, t.url, t.header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("syncclient: dial failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if backoff > t.maxBackoff {
				backoff = t.maxBackoff
			}
			continue
		}
		backoff = t.minBackoff

		t.mu.Lock()
		t.conn = conn
		t.mu.Unlock()

		select {
		case t.reconnected <- struct{}{}:
		default:
		}

		t.readLoop(ctx, conn)

		t.mu.Lock()
		t.conn = nil
		t.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Info("syncclient: connection lost, reconnecting")
	}
}

func (t *WSTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(clientReadTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(clientWriteWait))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				logger.Warn("syncclient: read failed: %v", err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(clientReadTimeout))

		var frame ws.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			logger.Warn("syncclient: dropping malformed frame: %v", err)
			continue
		}

		switch frame.Type {
		case ws.FramePong, ws.FrameSubscribed, ws.FrameUnsubscribed:
			continue
		case ws.FrameError:
			var data ws.ErrorFrameData
			json.Unmarshal(frame.Data, &data)
			logger.Warn("syncclient: server error for room %s: %s %s", frame.RoomID, data.Code, data.Message)
			continue
		}

		var event Event
		if err := json.Unmarshal(frame.Data, &event); err != nil {
			logger.Warn("syncclient: dropping malformed %s event: %v", frame.Type, err)
			continue
		}
		select {
		case t.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (t *WSTransport) Subscribe(roomID string) error {
	return t.write(ws.Frame{Type: ws.FrameSubscribe, RoomID: roomID})
}

func (t *WSTransport) Unsubscribe(roomID string) error {
	return t.write(ws.Frame{Type: ws.FrameUnsubscribe, RoomID: roomID})
}

func (t *WSTransport) SetTyping(roomID string, typing bool) error {
	data, err := json.Marshal(ws.TypingFrameData{Typing: typing})
	if err != nil {
		return errors.Validation("Invalid typing payload", err)
	}
	return t.write(ws.Frame{Type: ws.FrameTyping, RoomID: roomID, Data: data})
}

func (t *WSTransport) write(frame ws.Frame) error {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return errors.Transport("Not connected", nil)
	}
	t.conn.SetWriteDeadline(time.Now().Add(clientWriteWait))
	if err := t.conn.WriteJSON(frame); err != nil {
		return errors.Transport("Failed to write frame", err)
	}
	return nil
}
