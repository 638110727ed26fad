// Package eventbus publishes domain events to the notification collaborator.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-petr/pet-lender/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultMaxLen caps the length of the event stream approximately.
const DefaultMaxLen = 100_000

// RedisPublisher appends events to a Redis stream.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisPublisher returns a publisher appending to stream.
func NewRedisPublisher(client redis.Cmdable, stream string) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: DefaultMaxLen,
	}
}

// Publish appends e to the stream. The full event is stored as JSON under "payload".
func (p *RedisPublisher) Publish(ctx context.Context, e domain.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"id":        e.ID.String(),
			"type":      string(e.Type),
			"entity_id": e.EntityID.String(),
			"payload":   string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}

	return nil
}

// LogPublisher writes events to the request logger.
type LogPublisher struct{}

// Publish logs e.
func (LogPublisher) Publish(ctx context.Context, e domain.Event) error {
	zerolog.Ctx(ctx).Info().
		Str("event", string(e.Type)).
		Str("entity_id", e.EntityID.String()).
		Str("status", e.Status).
		Str("amount", e.Amount.String()).
		Str("balance", e.Balance.String()).
		Str("actor", e.Actor).
		Msg("domain event")

	return nil
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// Publish records e.
func (r *Recorder) Publish(_ context.Context, e domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)

	return nil
}

// Events returns the recorded events in publish order.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := make([]domain.Event, len(r.events))
	copy(events, r.events)

	return events
}

// Types returns the types of the recorded events in publish order.
func (r *Recorder) Types() []domain.EventType {
	events := r.Events()

	types := make([]domain.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}

	return types
}
