package entity

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeImage  MessageType = "image"
	MessageTypeOffer  MessageType = "offer"
	MessageTypeSystem MessageType = "system"
)

// Message is immutable after creation except for IsRead and the embedded offer status.
// ClientToken carries the sender's correlation token so the sender's session can
// match the echo against its optimistic copy.
type Message struct {
	ID          string        `json:"id" firestore:"id"`
	RoomID      string        `json:"room_id" firestore:"roomId"`
	SenderID    string        `json:"sender_id" firestore:"senderId"`
	Type        MessageType   `json:"type" firestore:"type"`
	Body        string        `json:"body" firestore:"body"`
	ClientToken string        `json:"client_token,omitempty" firestore:"clientToken,omitempty"`
	File        *FileMetadata `json:"file_metadata,omitempty" firestore:"file,omitempty"`
	Offer       *Offer        `json:"offer,omitempty" firestore:"offer,omitempty"`
	IsRead      bool          `json:"is_read" firestore:"isRead"`
	CreatedAt   time.Time     `json:"created_at" firestore:"createdAt"`
}

type FileMetadata struct {
	URL         string `json:"url" firestore:"url"`
	Filename    string `json:"filename" firestore:"filename"`
	ContentType string `json:"content_type" firestore:"contentType"`
	Size        int64  `json:"size" firestore:"size"`
}

// Before reports whether m sorts before other in room order: created_at, then id.
func (m *Message) Before(other *Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
