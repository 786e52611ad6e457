package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

// Client frame types
const (
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTyping      = "typing"
	FrameMarkRead    = "mark_read"
)

// Server-only frame types; room events use their entity.EventType.
const (
	FramePong         = "pong"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

// Frame is the envelope for every message on the socket, in both directions.
type Frame struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type outFrame struct {
	Type      string      `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type TypingFrameData struct {
	Typing bool `json:"typing"`
}

type MarkReadFrameData struct {
	MessageIDs []string `json:"message_ids"`
}

type ErrorFrameData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func eventFrame(event *entity.Event) outFrame {
	return outFrame{
		Type:      string(event.Type),
		RoomID:    event.RoomID,
		Data:      event,
		Timestamp: event.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// HandleClientMessage processes incoming WebSocket messages
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, messageBytes []byte) {
	var frame Frame
	if err := json.Unmarshal(messageBytes, &frame); err != nil {
		log.Printf("WebSocket: Failed to unmarshal message from client %s: %v", client.ID, err)
		m.sendError(client, "", errors.Validation("Invalid message format", err))
		return
	}

	switch frame.Type {
	case FramePing:
		m.reply(client, FramePong, "", nil)

	case FrameSubscribe:
		m.handleSubscribe(ctx, client, frame.RoomID)

	case FrameUnsubscribe:
		if m.Unsubscribe(client, frame.RoomID) {
			m.publishPresence(ctx, client, frame.RoomID, false)
		}
		m.reply(client, FrameUnsubscribed, frame.RoomID, nil)

	case FrameTyping:
		var data TypingFrameData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			m.sendError(client, frame.RoomID, errors.Validation("Invalid typing payload", err))
			return
		}
		if err := m.actions.SetTyping(ctx, client.Actor, frame.RoomID, data.Typing); err != nil {
			m.sendError(client, frame.RoomID, err)
		}

	case FrameMarkRead:
		var data MarkReadFrameData
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			m.sendError(client, frame.RoomID, errors.Validation("Invalid mark_read payload", err))
			return
		}
		if _, err := m.actions.MarkRead(ctx, client.Actor, frame.RoomID, data.MessageIDs); err != nil {
			m.sendError(client, frame.RoomID, err)
		}

	default:
		log.Printf("WebSocket: Unknown message type '%s' from client %s", frame.Type, client.ID)
		m.sendError(client, frame.RoomID, errors.Validation("Unknown message type: "+frame.Type, nil))
	}
}

func (m *Manager) handleSubscribe(ctx context.Context, client *Client, roomID string) {
	if roomID == "" {
		m.sendError(client, "", errors.Validation("room_id is required", nil))
		return
	}
	if err := m.actions.AuthorizeRoom(ctx, client.Actor, roomID); err != nil {
		m.sendError(client, roomID, err)
		return
	}

	m.Subscribe(client, roomID)
	m.reply(client, FrameSubscribed, roomID, nil)
	m.publishPresence(ctx, client, roomID, true)
}

func (m *Manager) reply(client *Client, frameType, roomID string, data interface{}) {
	payload, err := json.Marshal(outFrame{
		Type:      frameType,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		log.Printf("WebSocket: failed to encode %s frame: %v", frameType, err)
		return
	}
	m.SendToClient(client, payload)
}

func (m *Manager) sendError(client *Client, roomID string, err error) {
	data := ErrorFrameData{Code: errors.CodeInternal, Message: "An unexpected error occurred"}
	if appErr, ok := errors.AsAppError(err); ok {
		data = ErrorFrameData{Code: appErr.Code, Message: appErr.Message}
	}
	m.reply(client, FrameError, roomID, data)
}
