// Package pubsub carries room events between server instances over Redis.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"campaignhub/internal/domain/entity"
	"campaignhub/pkg/errors"
)

const channelPrefix = "room:"

// Deliverer hands an event to the sessions connected to this instance.
type Deliverer interface {
	Deliver(event *entity.Event)
}

// RedisBroker publishes every room event to room:{id}. Each instance runs one
// pattern subscription and forwards what it receives to its local hub, so an
// event reaches subscribers on every instance, including the publishing one.
type RedisBroker struct {
	client *redis.Client
	local  Deliverer
}

func NewRedisBroker(redisURL string, local Deliverer) (*RedisBroker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBroker{client: client, local: local}, nil
}

func NewRedisBrokerWithClient(client *redis.Client, local Deliverer) *RedisBroker {
	return &RedisBroker{client: client, local: local}
}

func channel(roomID string) string {
	return channelPrefix + roomID
}

func (b *RedisBroker) Publish(ctx context.Context, event *entity.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Internal("Failed to encode event", err)
	}

	if err := b.client.Publish(ctx, channel(event.RoomID), payload).Err(); err != nil {
		return errors.Transport("Failed to publish event", err)
	}
	return nil
}

// Run forwards subscribed events to the local hub until ctx is cancelled.
// ready, when non-nil, is closed once the subscription is active.
func (b *RedisBroker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to room events: %w", err)
	}
	if ready != nil {
		close(ready)
	}
	log.Printf("Redis fan-out subscribed to %s*", channelPrefix)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.forward(msg)
		}
	}
}

func (b *RedisBroker) forward(msg *redis.Message) {
	var event entity.Event
	if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
		log.Printf("Redis fan-out: dropping malformed event on %s: %v", msg.Channel, err)
		return
	}
	if event.RoomID == "" {
		event.RoomID = strings.TrimPrefix(msg.Channel, channelPrefix)
	}
	b.local.Deliver(&event)
}

func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
