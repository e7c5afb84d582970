package goOTP

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// normalizeEmail case-folds and trims the key every reset-guard operation is
// derived from. An empty email is a contract violation, never a wildcard.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: empty email", ErrInvalidArgument)
	}
	return email, nil
}

// CanRequestReset reports whether a password-reset request may be accepted
// for the email. It denies while locked out and once the fixed one-hour
// request window has reached its cap. It does not count the request; callers
// pair it with [Engine.TrackResetRequest] on acceptance.
func (e *Engine) CanRequestReset(ctx context.Context, email string) error {
	if e == nil || e.resetRequests == nil {
		return ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if err := e.requireUnlocked(ctx, e.resetLockout, key); err != nil {
		e.emitAudit(ctx, AuditResetRequest, "", key, false, err, nil)
		return err
	}

	count, err := e.resetRequests.Count(ctx, key)
	if err != nil {
		return backendErr(err)
	}
	if count >= e.config.Reset.MaxRequestsPerHour {
		e.metrics.Inc(MetricResetRequestBlocked)
		limitErr := &ResetRequestLimitError{Max: e.config.Reset.MaxRequestsPerHour}
		e.emitAudit(ctx, AuditResetRequest, "", key, false, limitErr, map[string]string{
			"request_count": strconv.Itoa(count),
		})
		return limitErr
	}

	return nil
}

// TrackResetRequest counts an accepted reset request against the email's
// fixed one-hour window. The count is never decremented.
func (e *Engine) TrackResetRequest(ctx context.Context, email string) error {
	if e == nil || e.resetRequests == nil {
		return ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if _, err := e.resetRequests.Incr(ctx, key); err != nil {
		return backendErr(err)
	}
	return nil
}

// CanAttemptReset reports whether a reset confirmation may proceed for the
// email. When the attempt counter has reached its cap, this check itself
// triggers the lockout and denies.
func (e *Engine) CanAttemptReset(ctx context.Context, email string) error {
	if e == nil || e.resetAttempts == nil {
		return ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if err := e.requireUnlocked(ctx, e.resetLockout, key); err != nil {
		e.emitAudit(ctx, AuditResetAttempt, "", key, false, err, nil)
		return err
	}

	count, err := e.resetAttempts.Count(ctx, key)
	if err != nil {
		return backendErr(err)
	}
	if count >= e.config.Reset.MaxAttempts {
		if lockErr := e.resetLockout.Lock(ctx, key, e.now()); lockErr != nil {
			return backendErr(lockErr)
		}
		e.metrics.Inc(MetricResetAttemptBlocked)
		e.metrics.Inc(MetricLockoutTriggered)
		attemptsErr := &ResetAttemptsError{LockedFor: e.config.Reset.LockoutDuration}
		e.emitAudit(ctx, AuditResetLockout, "", key, true, nil, map[string]string{
			"attempt_count": strconv.Itoa(count),
		})
		e.emitAudit(ctx, AuditResetAttempt, "", key, false, attemptsErr, nil)
		return attemptsErr
	}

	return nil
}

// TrackFailedResetAttempt counts a failed reset confirmation against the
// email's fixed one-hour window.
func (e *Engine) TrackFailedResetAttempt(ctx context.Context, email string) error {
	if e == nil || e.resetAttempts == nil {
		return ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if _, err := e.resetAttempts.Incr(ctx, key); err != nil {
		return backendErr(err)
	}
	return nil
}

// ClearResetTracking removes the request counter, attempt counter, and
// lockout for the email. Call it only after a fully successful reset.
func (e *Engine) ClearResetTracking(ctx context.Context, email string) error {
	if e == nil || e.resetRequests == nil {
		return ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	if err := e.resetRequests.Clear(ctx, key); err != nil {
		return backendErr(err)
	}
	if err := e.resetAttempts.Clear(ctx, key); err != nil {
		return backendErr(err)
	}
	if err := e.resetLockout.Clear(ctx, key); err != nil {
		return backendErr(err)
	}

	e.emitAudit(ctx, AuditResetCleared, "", key, true, nil, nil)
	return nil
}

// ResetRequestCount returns the email's request count in the current window.
func (e *Engine) ResetRequestCount(ctx context.Context, email string) (int, error) {
	if e == nil || e.resetRequests == nil {
		return 0, ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return 0, err
	}

	count, err := e.resetRequests.Count(ctx, key)
	if err != nil {
		return 0, backendErr(err)
	}
	return count, nil
}

// ResetAttemptCount returns the email's failed-attempt count in the current
// window.
func (e *Engine) ResetAttemptCount(ctx context.Context, email string) (int, error) {
	if e == nil || e.resetAttempts == nil {
		return 0, ErrEngineNotReady
	}
	key, err := normalizeEmail(email)
	if err != nil {
		return 0, err
	}

	count, err := e.resetAttempts.Count(ctx, key)
	if err != nil {
		return 0, backendErr(err)
	}
	return count, nil
}
