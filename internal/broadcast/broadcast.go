// Package broadcast fans change events out to live viewers of a guild.
// Delivery is best-effort, at-most-once: no acks, no retry, no backlog for
// late subscribers. Every subscriber can pull full current state over the
// API, so a lost event costs one refresh of latency, never correctness.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Topics published on a guild's channel.
const (
	TopicSettings = "settings"
	TopicQueue    = "queue"
)

// Event is the wire record delivered to subscribers.
type Event struct {
	TenantID uuid.UUID       `json:"tenant_id"`
	Topic    string          `json:"topic"`
	Payload  json.RawMessage `json:"payload"`
	SentAt   time.Time       `json:"sent_at"`
}

// Broadcaster publishes change events for a tenant.
type Broadcaster interface {
	Publish(ctx context.Context, tenantID uuid.UUID, topic string, payload any) error
}

// Channel builds the pub/sub channel name for a tenant and topic.
func Channel(tenantID uuid.UUID, topic string) string {
	return fmt.Sprintf("guild:%s:%s", tenantID, topic)
}

// RedisBroadcaster implements Broadcaster over Redis pub/sub. One channel
// per tenant+topic; horizontal instances share the fan-out through Redis
// rather than in-process state.
type RedisBroadcaster struct {
	client *redis.Client
}

// NewRedisBroadcaster creates a RedisBroadcaster from a Redis URL.
func NewRedisBroadcaster(redisURL string) (*RedisBroadcaster, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBroadcaster{client: redis.NewClient(opts)}, nil
}

func (b *RedisBroadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBroadcaster) Close() error {
	return b.client.Close()
}

func (b *RedisBroadcaster) Publish(ctx context.Context, tenantID uuid.UUID, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	event := Event{
		TenantID: tenantID,
		Topic:    topic,
		Payload:  raw,
		SentAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(tenantID, topic), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscription is a live event feed for one tenant.
type Subscription struct {
	ps     *redis.PubSub
	events chan Event
}

// Subscribe opens a feed of events for tenantID on the given topics.
// Membership lasts until Close; events published before Subscribe are
// never replayed.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, tenantID uuid.UUID, topics ...string) *Subscription {
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = Channel(tenantID, topic)
	}

	sub := &Subscription{
		ps:     b.client.Subscribe(ctx, channels...),
		events: make(chan Event, 64),
	}

	go func() {
		defer close(sub.events)
		for msg := range sub.ps.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			select {
			case sub.events <- event:
			default:
				// Slow consumer: drop, at-most-once.
			}
		}
	}()

	return sub
}

// Events returns the feed. Closed when the subscription is closed.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close leaves all channels and stops the feed.
func (s *Subscription) Close() error {
	return s.ps.Close()
}
