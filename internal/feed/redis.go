package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus fans events out across server instances with Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	prefix string
	log    *slog.Logger
}

func NewRedisBus(client *redis.Client, log *slog.Logger) *RedisBus {
	return &RedisBus{client: client, prefix: "care:", log: log}
}

func (b *RedisBus) Publish(ctx context.Context, topic string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+topic, data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, topics ...string) (*Listener, error) {
	keys := make([]string, len(topics))
	for i, t := range topics {
		keys[i] = b.prefix + t
	}

	ps := b.client.Subscribe(ctx, keys...)
	// wait for the subscription to be confirmed so nothing published
	// after Subscribe returns is lost
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan Event, listenerBuffer)
	in := ps.Channel()
	go func() {
		defer close(out)
		for msg := range in {
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn("feed: dropping malformed event", "channel", msg.Channel, "error", err)
				continue
			}
			offer(out, ev)
		}
	}()

	return &Listener{C: out, closeFn: ps.Close}, nil
}
