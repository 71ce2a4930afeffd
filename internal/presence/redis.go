package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// leave decrements and removes the key at zero in one step so a
// concurrent Enter is never deleted.
var leave = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then redis.call('DEL', KEYS[1]) end
return n
`)

// Redis shares presence between server instances. A crashed instance's
// views expire after ttl.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) key(channelID, userID string) string {
	return "care:presence:" + channelID + ":" + userID
}

func (r *Redis) Enter(ctx context.Context, channelID, userID string) error {
	k := r.key(channelID, userID)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence enter: %w", err)
	}
	return nil
}

func (r *Redis) Touch(ctx context.Context, channelID, userID string) error {
	if err := r.client.Expire(ctx, r.key(channelID, userID), r.ttl).Err(); err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	return nil
}

func (r *Redis) Leave(ctx context.Context, channelID, userID string) error {
	if err := leave.Run(ctx, r.client, []string{r.key(channelID, userID)}).Err(); err != nil {
		return fmt.Errorf("presence leave: %w", err)
	}
	return nil
}

func (r *Redis) Viewing(ctx context.Context, channelID, userID string) (bool, error) {
	n, err := r.client.Get(ctx, r.key(channelID, userID)).Int()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("presence viewing: %w", err)
	}
	return n > 0, nil
}
