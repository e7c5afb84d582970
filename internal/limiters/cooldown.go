package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCooldownUnavailable indicates the cooldown backend is unreachable.
var ErrCooldownUnavailable = errors.New("cooldown backend unavailable")

// Cooldown enforces a minimum spacing between repeats of one action per key.
// The stored value is the last action timestamp with the cooldown period as
// TTL; the tracker's lifetime is independent of any record it throttles.
type Cooldown struct {
	redis  redis.UniversalClient
	prefix string
	period time.Duration
}

// NewCooldown creates a cooldown tracker.
func NewCooldown(redisClient redis.UniversalClient, prefix string, period time.Duration) *Cooldown {
	return &Cooldown{redis: redisClient, prefix: prefix, period: period}
}

func (c *Cooldown) key(subject string) string {
	return c.prefix + subject
}

// Touch records the action at now, restarting the cooldown window.
func (c *Cooldown) Touch(ctx context.Context, subject string, now time.Time) error {
	value := now.UTC().Format(time.RFC3339Nano)
	if err := c.redis.Set(ctx, c.key(subject), value, c.period).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	return nil
}

// Remaining returns the time left before the action is allowed again, zero
// when no cooldown is active. An unparsable stored timestamp reads as zero.
func (c *Cooldown) Remaining(ctx context.Context, subject string, now time.Time) (time.Duration, error) {
	value, err := c.redis.Get(ctx, c.key(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}

	last, parseErr := time.Parse(time.RFC3339Nano, value)
	if parseErr != nil {
		return 0, nil
	}

	remaining := c.period - now.Sub(last)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Clear removes the tracker so a fresh issuance restarts the window.
func (c *Cooldown) Clear(ctx context.Context, subject string) error {
	if err := c.redis.Del(ctx, c.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCooldownUnavailable, err)
	}
	return nil
}
