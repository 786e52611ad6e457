package entity

import "time"

type EventType string

const (
	EventMessageCreated   EventType = "message.created"
	EventMessageRead      EventType = "message.read"
	EventTyping           EventType = "typing"
	EventPresence         EventType = "presence"
	EventOfferUpdated     EventType = "offer.updated"
	EventContractUpdated  EventType = "contract.updated"
	EventMilestoneUpdated EventType = "milestone.updated"
)

// Event is a state change fanned out to every session subscribed to RoomID.
type Event struct {
	Type       EventType   `json:"type"`
	RoomID     string      `json:"room_id"`
	ContractID string      `json:"contract_id,omitempty"`
	ActorID    string      `json:"actor_id,omitempty"`
	Data       interface{} `json:"data"`
	OccurredAt time.Time   `json:"occurred_at"`
}

type ReadReceiptData struct {
	ReaderID   string   `json:"reader_id"`
	MessageIDs []string `json:"message_ids"`
}

type TypingData struct {
	UserID string `json:"user_id"`
	Typing bool   `json:"typing"`
}

type PresenceData struct {
	UserID   string `json:"user_id"`
	IsOnline bool   `json:"is_online"`
}

type MilestoneEventData struct {
	ContractID string    `json:"contract_id"`
	Milestone  Milestone `json:"milestone"`
	Action     string    `json:"action"`
	Version    int64     `json:"version"`
}
