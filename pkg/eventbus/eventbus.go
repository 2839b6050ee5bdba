// Package eventbus is the cross-instance publish/subscribe fabric carrying
// ingested events between instances: a single logical channel, at-most-once,
// best-effort delivery.
//
// Grounded on the teacher's pkg/events.NotifyListener — same dedicated
// receive loop, reconnect-with-backoff shape — retargeted from Postgres
// LISTEN/NOTIFY onto Redis pub/sub, since this bus has exactly one fixed
// channel instead of NotifyListener's dynamic per-session channel set.
package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel is the single logical topic carrying canonicalized LogEvent
// payloads as JSON.
const Channel = "strym:logs"

// Bus publishes to and receives from the shared Redis channel. Publish
// degrades to a reported error (the caller falls back to local-only
// delivery); the receive loop reconnects with exponential backoff and may
// drop events during the gap, per the no-durability contract.
type Bus struct {
	client *redis.Client
}

// Open connects to Redis for publish/subscribe.
func Open(redisURL string) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Bus{client: redis.NewClient(opts)}, nil
}

// NewFromClient wraps an already-constructed client, for tests.
func NewFromClient(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish sends payload to every subscribed instance, including this one's
// own Listen loop. A non-nil error means the caller should still deliver
// the event to its own in-process SubscriptionRegistry directly — the bus
// contract degrades to local-only on backend failure.
func (b *Bus) Publish(ctx context.Context, payload []byte) error {
	return b.client.Publish(ctx, Channel, payload).Err()
}

// Listen runs until ctx is cancelled, invoking handler for every payload
// received on Channel — including payloads this process itself published.
// On a receive error it closes the subscription and reconnects with
// exponential backoff, logging the gap; it never returns except on ctx
// cancellation.
func (b *Bus) Listen(ctx context.Context, handler func(payload []byte)) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		pubsub := b.client.Subscribe(ctx, Channel)
		if err := pubsub.Ping(ctx); err != nil {
			_ = pubsub.Close()
			slog.Error("eventbus subscribe failed, retrying", "error", err, "backoff", backoff)
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		ch := pubsub.Channel()
		done := drainChannel(ctx, ch, handler)
		_ = pubsub.Close()
		if done {
			return
		}

		slog.Warn("eventbus subscription dropped, reconnecting")
	}
}

// drainChannel forwards messages to handler until ch closes or ctx is
// cancelled. Returns true when the caller should stop entirely (ctx done).
func drainChannel(ctx context.Context, ch <-chan *redis.Message, handler func([]byte)) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			handler([]byte(msg.Payload))
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
