package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrAttemptsUnavailable indicates the failed-attempt backend is unreachable.
var ErrAttemptsUnavailable = errors.New("failed-attempt backend unavailable")

// FailedAttempts counts mismatched verifications per key inside a rolling
// window and reports when the threshold is reached.
type FailedAttempts struct {
	redis     redis.UniversalClient
	prefix    string
	threshold int
	window    time.Duration
}

// NewFailedAttempts creates a failed-attempt counter.
func NewFailedAttempts(redisClient redis.UniversalClient, prefix string, threshold int, window time.Duration) *FailedAttempts {
	return &FailedAttempts{redis: redisClient, prefix: prefix, threshold: threshold, window: window}
}

func (f *FailedAttempts) key(subject string) string {
	return f.prefix + subject
}

// RecordFailure increments the counter atomically and refreshes the window
// TTL. Returns true when the new count has reached the threshold; the caller
// decides the consequence.
func (f *FailedAttempts) RecordFailure(ctx context.Context, subject string) (bool, error) {
	count, err := f.redis.Incr(ctx, f.key(subject)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}

	// Every failure restarts the window, matching the record-level rule that
	// the count holds until the subject goes quiet for a full window.
	if err := f.redis.Expire(ctx, f.key(subject), f.window).Err(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}

	return count >= int64(f.threshold), nil
}

// Reset clears the counter after a successful verification.
func (f *FailedAttempts) Reset(ctx context.Context, subject string) error {
	if err := f.redis.Del(ctx, f.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// Count returns the current failure count. An unparsable stored value is a
// backend error, not a zero: abuse counters are never silently reset.
func (f *FailedAttempts) Count(ctx context.Context, subject string) (int, error) {
	count, err := f.redis.Get(ctx, f.key(subject)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return int(count), nil
}
