package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCounterUnavailable indicates the counter backend is unreachable.
var ErrCounterUnavailable = errors.New("counter backend unavailable")

// WindowCounter is a fixed-window counter: the TTL is set when the first
// increment opens the window and is not refreshed afterwards, so the count
// resets only when the bucket expires. Counts are never decremented.
type WindowCounter struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
}

// NewWindowCounter creates a fixed-window counter under the given prefix.
func NewWindowCounter(redisClient redis.UniversalClient, prefix string, window time.Duration) *WindowCounter {
	return &WindowCounter{redis: redisClient, prefix: prefix, window: window}
}

func (c *WindowCounter) key(id string) string {
	return c.prefix + id
}

// Incr adds one atomically and returns the new count.
func (c *WindowCounter) Incr(ctx context.Context, id string) (int64, error) {
	count, err := c.redis.Incr(ctx, c.key(id)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}

	if count == 1 {
		if err := c.redis.Expire(ctx, c.key(id), c.window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
		}
	}

	return count, nil
}

// Count returns the current window's count. An unparsable stored value is a
// backend error, not a zero.
func (c *WindowCounter) Count(ctx context.Context, id string) (int, error) {
	count, err := c.redis.Get(ctx, c.key(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return int(count), nil
}

// Clear removes the counter, closing the current window early.
func (c *WindowCounter) Clear(ctx context.Context, id string) error {
	if err := c.redis.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCounterUnavailable, err)
	}
	return nil
}
