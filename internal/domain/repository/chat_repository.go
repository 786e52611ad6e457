package repository

import (
	"context"
	"time"

	"campaignhub/internal/domain/entity"
)

type RoomRepository interface {
	// Create stores a room unless one already exists for the same participant
	// pair, in which case the existing room is returned with created=false.
	Create(ctx context.Context, room *entity.Room) (stored *entity.Room, created bool, err error)
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	FindByParticipants(ctx context.Context, userA, userB string) (*entity.Room, error)
	ListByUserID(ctx context.Context, userID string, limit, offset int) ([]*entity.Room, int64, error)

	// AttachContract and AttachCampaign set a reference once. Setting the same
	// value again is a no-op; a different value is a precondition failure.
	AttachContract(ctx context.Context, roomID, contractID string) error
	AttachCampaign(ctx context.Context, roomID, campaignTitle string) error

	UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error
}

type MessageQuery struct {
	Limit int
	// Before is a message id; only messages ordered before it are returned.
	Before string
}

type MessageRepository interface {
	// Insert is idempotent by message id. A repeated insert returns the stored
	// copy with inserted=false.
	Insert(ctx context.Context, message *entity.Message) (stored *entity.Message, inserted bool, err error)
	GetByID(ctx context.Context, roomID, messageID string) (*entity.Message, error)

	// List returns the newest messages matching q in ascending room order.
	List(ctx context.Context, roomID string, q MessageQuery) ([]*entity.Message, error)

	// MarkRead flips is_read on messages not sent by readerID and returns the
	// ids that actually changed.
	MarkRead(ctx context.Context, roomID, readerID string, messageIDs []string) ([]string, error)

	// UpdateOffer applies fn to the offer embedded in a message atomically.
	UpdateOffer(ctx context.Context, roomID, messageID string, fn func(offer *entity.Offer) error) (*entity.Message, error)
}
