package goOTP

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) (*Engine, *miniredis.Miniredis, *fakeClock) {
	t.Helper()

	mr, rdb := newTestRedis(t)
	clk := newFakeClock()

	opts = append([]Option{WithClock(clk.Now)}, opts...)
	engine, err := New(rdb, cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, mr, clk
}

// advance moves both the engine clock and miniredis TTLs.
func advance(mr *miniredis.Miniredis, clk *fakeClock, d time.Duration) {
	clk.Advance(d)
	mr.FastForward(d)
}

func TestIssueAndVerifyExactlyOnce(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if len(issued.Code) != 6 {
		t.Fatalf("expected 6-digit code, got %q", issued.Code)
	}
	if issued.Code[0] == '0' {
		t.Fatalf("expected no leading zero, got %q", issued.Code)
	}

	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if !status.HasActiveCode {
		t.Fatal("expected active code after issue")
	}

	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	if err := engine.VerifyCode(ctx, subject, issued.Code); !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("expected ErrCodeAlreadyUsed on replay, got %v", err)
	}
}

func TestIssueReplacesPreviousCode(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	subject := uuid.NewString()

	first, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("first IssueCode failed: %v", err)
	}
	second, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("second IssueCode failed: %v", err)
	}

	if first.Code == second.Code {
		t.Fatal("expected a fresh code value on re-issue")
	}
	if err := engine.VerifyCode(ctx, subject, first.Code); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch for replaced code, got %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, second.Code); err != nil {
		t.Fatalf("VerifyCode with current code failed: %v", err)
	}
}

func TestVerifyUnknownSubject(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())

	err := engine.VerifyCode(context.Background(), uuid.NewString(), "123456")
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestVerifyInvalidArguments(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	if err := engine.VerifyCode(ctx, "", "123456"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty subject, got %v", err)
	}
	if err := engine.VerifyCode(ctx, "u1", ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty code, got %v", err)
	}
	if _, err := engine.IssueCode(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty subject, got %v", err)
	}
}

func TestVerifyExpiryScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.Expiry = 5 * time.Minute

	engine, _, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := "42"

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	// Clock-only advance: the record is still stored, but logically expired
	// once past createdAt+Expiry.
	clk.Advance(4 * time.Minute)
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode at t0+4m failed: %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); !errors.Is(err, ErrCodeAlreadyUsed) {
		t.Fatalf("expected ErrCodeAlreadyUsed, got %v", err)
	}

	fresh, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("fresh IssueCode failed: %v", err)
	}

	clk.Advance(6 * time.Minute)
	if err := engine.VerifyCode(ctx, subject, fresh.Code); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if status.HasActiveCode {
		t.Fatal("expected no active code after expiry purge")
	}
}

func TestVerifyFailedAttemptsLockout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.MaxFailedAttempts = 5

	engine, mr, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := engine.VerifyCode(ctx, subject, "000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i+1, err)
		}
	}

	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if !status.IsLockedOut {
		t.Fatal("expected lockout immediately after fifth mismatch")
	}
	if status.LockoutRemaining <= 0 || status.LockoutRemaining > cfg.OTP.LockoutDuration {
		t.Fatalf("lockout remaining out of range: %v", status.LockoutRemaining)
	}

	var lockedErr *LockedOutError
	err = engine.VerifyCode(ctx, subject, "000000")
	if !errors.As(err, &lockedErr) {
		t.Fatalf("expected LockedOutError, got %v", err)
	}
	if _, err := engine.IssueCode(ctx, subject); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut on issue, got %v", err)
	}
	if _, err := engine.ResendCode(ctx, subject); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected ErrLockedOut on resend, got %v", err)
	}

	// Lockout clears only by TTL expiry.
	advance(mr, clk, cfg.OTP.LockoutDuration-time.Second)
	if _, err := engine.IssueCode(ctx, subject); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("expected lockout to persist until duration elapses, got %v", err)
	}
	advance(mr, clk, 2*time.Second)
	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("expected issue to succeed after lockout expiry, got %v", err)
	}
}

func TestResendCooldown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.ResendCooldown = 60 * time.Second

	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	// Issuance clears the resend tracker, so the first resend is allowed.
	if _, err := engine.ResendCode(ctx, subject); err != nil {
		t.Fatalf("first ResendCode failed: %v", err)
	}

	var cooldownErr *CooldownError
	_, err := engine.ResendCode(ctx, subject)
	if !errors.As(err, &cooldownErr) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cooldownErr.Remaining <= 0 || cooldownErr.Remaining > cfg.OTP.ResendCooldown {
		t.Fatalf("cooldown remaining out of range: %v", cooldownErr.Remaining)
	}
}

func TestResendCountsAndLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.ResendCooldown = time.Second
	cfg.OTP.MaxResendCount = 3

	engine, mr, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		issued, err := engine.ResendCode(ctx, subject)
		if err != nil {
			t.Fatalf("resend %d failed: %v", i, err)
		}
		if issued.ResendCount != i {
			t.Fatalf("resend %d: expected count %d, got %d", i, i, issued.ResendCount)
		}
		advance(mr, clk, 2*time.Second)
	}

	var limitErr *ResendLimitError
	_, err := engine.ResendCode(ctx, subject)
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected ResendLimitError, got %v", err)
	}
	if limitErr.Max != 3 {
		t.Fatalf("expected limit 3, got %d", limitErr.Max)
	}

	status, statErr := engine.CodeStatus(ctx, subject)
	if statErr != nil {
		t.Fatalf("CodeStatus failed: %v", statErr)
	}
	if !status.IsLockedOut {
		t.Fatal("expected lockout after resend limit breach")
	}
}

func TestResendRotatesActiveCode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.ResendCooldown = time.Second

	engine, mr, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	first, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	advance(mr, clk, 2*time.Second)
	rotated, err := engine.ResendCode(ctx, subject)
	if err != nil {
		t.Fatalf("ResendCode failed: %v", err)
	}
	if rotated.Reissued {
		t.Fatal("expected rotation, not reissue")
	}
	if rotated.Code == first.Code {
		t.Fatal("expected a new code value after resend")
	}

	// Single-active-code invariant: pre-resend code is dead.
	if err := engine.VerifyCode(ctx, subject, first.Code); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch for stale code, got %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, rotated.Code); err != nil {
		t.Fatalf("VerifyCode with rotated code failed: %v", err)
	}
}

func TestResendReissuesAfterExpiry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.Expiry = 5 * time.Minute
	cfg.OTP.ResendCooldown = time.Second

	engine, _, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	clk.Advance(6 * time.Minute)
	issued, err := engine.ResendCode(ctx, subject)
	if err != nil {
		t.Fatalf("ResendCode after expiry failed: %v", err)
	}
	if !issued.Reissued {
		t.Fatal("expected reissue of a fresh code")
	}
	if issued.ResendCount != 0 {
		t.Fatalf("expected reset resend count, got %d", issued.ResendCount)
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode with reissued code failed: %v", err)
	}
}

func TestResendWithoutRecordIssuesFresh(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.ResendCode(ctx, subject)
	if err != nil {
		t.Fatalf("ResendCode without record failed: %v", err)
	}
	if !issued.Reissued {
		t.Fatal("expected reissue when no record exists")
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
}

func TestCodeStatusCanResend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.ResendCooldown = 30 * time.Second

	engine, mr, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if _, err := engine.ResendCode(ctx, subject); err != nil {
		t.Fatalf("ResendCode failed: %v", err)
	}

	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if status.CanResend {
		t.Fatal("expected CanResend=false inside cooldown")
	}
	if status.CooldownRemaining <= 0 {
		t.Fatal("expected positive cooldown remaining")
	}
	if status.ResendCount != 1 {
		t.Fatalf("expected resend count 1, got %d", status.ResendCount)
	}

	advance(mr, clk, cfg.OTP.ResendCooldown+time.Second)
	status, err = engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if !status.CanResend {
		t.Fatal("expected CanResend=true after cooldown")
	}
	if status.ExpiresIn <= 0 || status.ExpiresIn > cfg.OTP.Expiry {
		t.Fatalf("ExpiresIn out of range: %v", status.ExpiresIn)
	}
}

func TestVerifySuccessResetsFailedAttempts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.MaxFailedAttempts = 3

	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := engine.VerifyCode(ctx, subject, "000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch, got %v", err)
		}
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	// Counter was reset on success: two more mismatches stay below threshold.
	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := engine.VerifyCode(ctx, subject, "000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch, got %v", err)
		}
	}
	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if status.IsLockedOut {
		t.Fatal("expected no lockout after counter reset")
	}
}

func TestCleanupCode(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if err := engine.CleanupCode(ctx, subject); err != nil {
		t.Fatalf("CleanupCode failed: %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after cleanup, got %v", err)
	}
}

func TestTTLExpiryReadsAsNotFound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.Expiry = time.Minute

	engine, mr, clk := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	// Store-side TTL deletion is indistinguishable from a missing key.
	advance(mr, clk, 2*time.Minute)
	if err := engine.VerifyCode(ctx, subject, issued.Code); !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound after TTL expiry, got %v", err)
	}
}

func TestEngineMetrics(t *testing.T) {
	engine, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, "000000"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	snap := engine.MetricsSnapshot()
	if snap.Counters[MetricCodeIssued] != 1 {
		t.Fatalf("expected 1 issued, got %d", snap.Counters[MetricCodeIssued])
	}
	if snap.Counters[MetricCodeMismatch] != 1 {
		t.Fatalf("expected 1 mismatch, got %d", snap.Counters[MetricCodeMismatch])
	}
	if snap.Counters[MetricCodeVerified] != 1 {
		t.Fatalf("expected 1 verified, got %d", snap.Counters[MetricCodeVerified])
	}
}

func TestAuditEventsOmitCodes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 16

	sink := NewAuditChannelSink(16)
	engine, _, _ := newTestEngine(t, cfg, WithAuditSink(sink))
	ctx := context.Background()
	subject := uuid.NewString()

	issued, err := engine.IssueCode(ctx, subject)
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	if err := engine.VerifyCode(ctx, subject, issued.Code); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}
	engine.Close()

	types := map[string]bool{}
	for {
		select {
		case event := <-sink.Events():
			types[event.EventType] = true
			if strings.Contains(event.Error, issued.Code) {
				t.Fatalf("audit error leaks code value: %q", event.Error)
			}
			for _, v := range event.Metadata {
				if strings.Contains(v, issued.Code) {
					t.Fatalf("audit metadata leaks code value: %q", v)
				}
			}
		default:
			if !types[AuditCodeIssue] || !types[AuditCodeVerify] {
				t.Fatalf("missing audit events, saw %v", types)
			}
			return
		}
	}
}

func TestConcurrentMismatchesNeverUndercountLockout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OTP.MaxFailedAttempts = 5

	engine, _, _ := newTestEngine(t, cfg)
	ctx := context.Background()
	subject := uuid.NewString()

	if _, err := engine.IssueCode(ctx, subject); err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = engine.VerifyCode(ctx, subject, "000000")
		}()
	}
	wg.Wait()

	status, err := engine.CodeStatus(ctx, subject)
	if err != nil {
		t.Fatalf("CodeStatus failed: %v", err)
	}
	if !status.IsLockedOut {
		t.Fatal("expected lockout after concurrent mismatches (INCR never under-counts)")
	}
}
