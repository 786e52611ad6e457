package entity

import (
	"sort"
	"strings"
	"time"
)

// Room is a one-to-one conversation, optionally bound to a contract.
// CampaignTitle and ContractID are set at most once.
type Room struct {
	ID            string    `json:"id" firestore:"id"`
	ParticipantA  string    `json:"participant_a" firestore:"participantA"`
	ParticipantB  string    `json:"participant_b" firestore:"participantB"`
	Participants  []string  `json:"-" firestore:"participants"` // array-contains queries
	PairKey       string    `json:"-" firestore:"pairKey"`
	CampaignTitle string    `json:"campaign_title,omitempty" firestore:"campaignTitle,omitempty"`
	ContractID    string    `json:"contract_id,omitempty" firestore:"contractId,omitempty"`
	LastMessage   string    `json:"last_message,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"last_message_at" firestore:"lastMessageAt"`
	CreatedAt     time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updated_at" firestore:"updatedAt"`
}

func (r *Room) HasParticipant(userID string) bool {
	return userID != "" && (r.ParticipantA == userID || r.ParticipantB == userID)
}

// Counterpart returns the other participant, or "" when userID is not in the room.
func (r *Room) Counterpart(userID string) string {
	switch userID {
	case r.ParticipantA:
		return r.ParticipantB
	case r.ParticipantB:
		return r.ParticipantA
	}
	return ""
}

// RoomPairKey identifies the unordered participant pair of a room.
func RoomPairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}
