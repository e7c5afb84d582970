package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockoutUnavailable indicates the lockout backend is unreachable.
// Callers must treat it as "possibly locked", never as "not locked".
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// Lockout is a binary locked/unlocked state per key. The stored value is the
// lock start timestamp; the key TTL equals the lockout duration, so the state
// clears only by expiry. There is no graduated state and no manual unlock in
// the request path.
type Lockout struct {
	redis    redis.UniversalClient
	prefix   string
	duration time.Duration
}

// NewLockout creates a lockout primitive over its own key namespace.
// Instances with different prefixes are fully independent.
func NewLockout(redisClient redis.UniversalClient, prefix string, duration time.Duration) *Lockout {
	return &Lockout{redis: redisClient, prefix: prefix, duration: duration}
}

func (l *Lockout) key(subject string) string {
	return l.prefix + subject
}

// Duration returns the configured lockout duration.
func (l *Lockout) Duration() time.Duration {
	return l.duration
}

// Lock marks the key locked as of now. Re-locking an already-locked key
// overwrites the start timestamp, extending the unlock time from now.
func (l *Lockout) Lock(ctx context.Context, subject string, now time.Time) error {
	value := now.UTC().Format(time.RFC3339Nano)
	if err := l.redis.Set(ctx, l.key(subject), value, l.duration).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

// IsLocked reports whether the key is inside an active lockout window.
// Absence of the key is the only unlocked state.
func (l *Lockout) IsLocked(ctx context.Context, subject string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(subject)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return n > 0, nil
}

// Remaining returns the time left on an active lockout, zero when unlocked.
// An unparsable stored timestamp reads as zero remaining.
func (l *Lockout) Remaining(ctx context.Context, subject string, now time.Time) (time.Duration, error) {
	value, err := l.redis.Get(ctx, l.key(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	start, parseErr := time.Parse(time.RFC3339Nano, value)
	if parseErr != nil {
		return 0, nil
	}

	remaining := l.duration - now.Sub(start)
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

// Clear removes the lockout state. The engine calls this only outside the
// deny paths: on successful verification and on full cleanup.
func (l *Lockout) Clear(ctx context.Context, subject string) error {
	if err := l.redis.Del(ctx, l.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
