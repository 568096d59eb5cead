package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gitco/alphatrader/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub. Engine events are
// fire-and-forget: a subscriber that is not listening when an event fires
// simply misses it, which is acceptable for dashboard-style consumers.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish JSON-encodes payload and sends it to a Redis Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: encode event for %s: %w", channel, err)
	}
	if err := eb.rdb.Publish(ctx, channel, raw).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe joins the given Pub/Sub channels and returns a read-only message
// channel plus a cancel function. The message channel is closed when the
// context ends or cancel is called.
func (eb *EventBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func(), error) {
	pubsub := eb.rdb.Subscribe(ctx, channels...)

	// Receive the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	out := make(chan domain.BusMessage, 128)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				case <-done:
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
