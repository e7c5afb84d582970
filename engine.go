package goOTP

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goOTP/internal"
	"github.com/MrEthical07/goOTP/internal/audit"
	"github.com/MrEthical07/goOTP/internal/limiters"
	"github.com/MrEthical07/goOTP/internal/stores"
)

// Redis key namespaces. The OTP manager and the reset guard instantiate the
// same lockout primitive under disjoint prefixes.
const (
	codeKeyPrefix           = "otp:user:"
	codeLockoutKeyPrefix    = "otp:lockout:user:"
	resendKeyPrefix         = "otp:resend:user:"
	failedAttemptsKeyPrefix = "otp:failed_attempts:user:"
	resetRequestKeyPrefix   = "pwd_reset:requests:"
	resetAttemptKeyPrefix   = "pwd_reset:attempts:"
	resetLockoutKeyPrefix   = "pwd_reset:lockout:"
)

// resetWindow is the fixed counting window for reset request/attempt counters.
const resetWindow = time.Hour

// Engine is the ephemeral-state protection engine. Construct it with [New];
// all methods are safe for concurrent use afterwards. The injected Redis
// client is the only shared mutable state the engine touches.
type Engine struct {
	config        Config
	codes         *stores.CodeStore
	codeLockout   *limiters.Lockout
	resetLockout  *limiters.Lockout
	failed        *limiters.FailedAttempts
	cooldown      *limiters.Cooldown
	resetRequests *limiters.WindowCounter
	resetAttempts *limiters.WindowCounter
	metrics       *Metrics
	audit         *audit.Dispatcher
	generate      func(digits int) (string, error)
	now           func() time.Time
}

// Option customizes engine construction.
type Option func(*Engine)

// WithAuditSink attaches an audit sink. Events are dispatched asynchronously
// per Config.Audit; without this option audit events are dropped.
func WithAuditSink(sink AuditSink) Option {
	return func(e *Engine) {
		e.audit = audit.NewDispatcher(audit.Config{
			Enabled:    e.config.Audit.Enabled,
			BufferSize: e.config.Audit.BufferSize,
			DropIfFull: e.config.Audit.DropIfFull,
		}, sink)
	}
}

// WithCodeGenerator replaces the uniform random code source. The generator
// receives the configured digit count and must return exactly that many
// digits with no leading zero.
func WithCodeGenerator(generate func(digits int) (string, error)) Option {
	return func(e *Engine) {
		if generate != nil {
			e.generate = generate
		}
	}
}

// WithClock replaces the engine clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs an engine over the given ephemeral store client.
func New(redisClient redis.UniversalClient, cfg Config, opts ...Option) (*Engine, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrEngineNotReady)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:        cfg,
		codes:         stores.NewCodeStore(redisClient, codeKeyPrefix),
		codeLockout:   limiters.NewLockout(redisClient, codeLockoutKeyPrefix, cfg.OTP.LockoutDuration),
		resetLockout:  limiters.NewLockout(redisClient, resetLockoutKeyPrefix, cfg.Reset.LockoutDuration),
		failed:        limiters.NewFailedAttempts(redisClient, failedAttemptsKeyPrefix, cfg.OTP.MaxFailedAttempts, cfg.OTP.FailedAttemptsWindow),
		cooldown:      limiters.NewCooldown(redisClient, resendKeyPrefix, cfg.OTP.ResendCooldown),
		resetRequests: limiters.NewWindowCounter(redisClient, resetRequestKeyPrefix, resetWindow),
		resetAttempts: limiters.NewWindowCounter(redisClient, resetAttemptKeyPrefix, resetWindow),
		metrics:       NewMetrics(cfg.Metrics),
		generate:      internal.NewCode,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Close flushes and stops the audit dispatcher. The engine performs no other
// background work.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of all engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// requireUnlocked is the shared lockout gate. Store failures surface as
// ErrBackendUnavailable: protection fails closed, never open.
func (e *Engine) requireUnlocked(ctx context.Context, lockout *limiters.Lockout, key string) error {
	locked, err := lockout.IsLocked(ctx, key)
	if err != nil {
		return backendErr(err)
	}
	if !locked {
		return nil
	}

	remaining, err := lockout.Remaining(ctx, key, e.now())
	if err != nil {
		return backendErr(err)
	}

	e.metrics.Inc(MetricLockedOutRejected)
	return &LockedOutError{Remaining: remaining}
}

// purgeCodeState removes every OTP-flow key for a subject: the record, the
// resend tracker, the lockout, and the failed-attempt counter.
func (e *Engine) purgeCodeState(ctx context.Context, subject string) error {
	if err := e.codes.Delete(ctx, subject); err != nil {
		return backendErr(err)
	}
	if err := e.cooldown.Clear(ctx, subject); err != nil {
		return backendErr(err)
	}
	if err := e.codeLockout.Clear(ctx, subject); err != nil {
		return backendErr(err)
	}
	if err := e.failed.Reset(ctx, subject); err != nil {
		return backendErr(err)
	}
	return nil
}

func backendErr(err error) error {
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}
