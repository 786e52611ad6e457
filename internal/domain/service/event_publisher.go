package service

import (
	"context"

	"campaignhub/internal/domain/entity"
)

// EventPublisher fans a state change out to every session subscribed to the
// event's room. Delivery is at-least-once and ordered per room.
type EventPublisher interface {
	Publish(ctx context.Context, event *entity.Event) error
}
