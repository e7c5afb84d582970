package goOTP

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goOTP/internal/stores"
)

// IssueCode generates and stores a fresh one-time code for the subject,
// replacing any previous record. The resend tracker is cleared so the new
// issuance restarts the cooldown window. Fails with [ErrLockedOut] while the
// subject is locked.
func (e *Engine) IssueCode(ctx context.Context, subject string) (*IssuedCode, error) {
	if e == nil || e.codes == nil {
		return nil, ErrEngineNotReady
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidArgument)
	}

	if err := e.requireUnlocked(ctx, e.codeLockout, subject); err != nil {
		e.emitAudit(ctx, AuditCodeIssue, subject, "", false, err, nil)
		return nil, err
	}

	issued, err := e.issueFresh(ctx, subject)
	if err != nil {
		e.emitAudit(ctx, AuditCodeIssue, subject, "", false, err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricCodeIssued)
	e.emitAudit(ctx, AuditCodeIssue, subject, "", true, nil, nil)
	return issued, nil
}

// issueFresh writes a new record and clears the resend tracker. Lockout must
// already have been checked by the caller.
func (e *Engine) issueFresh(ctx context.Context, subject string) (*IssuedCode, error) {
	code, err := e.generate(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	now := e.now()
	rec := &stores.CodeRecord{
		Subject:   subject,
		Code:      code,
		CreatedAt: now,
	}
	if err := e.codes.Save(ctx, rec, e.config.OTP.Expiry); err != nil {
		return nil, backendErr(err)
	}

	if err := e.cooldown.Clear(ctx, subject); err != nil {
		return nil, backendErr(err)
	}

	return &IssuedCode{
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.OTP.Expiry),
	}, nil
}

// VerifyCode checks a submitted code for the subject. Check order: lockout,
// record presence, prior use, expiry, equality. A mismatch counts toward the
// failed-attempt threshold and triggers lockout when the threshold is reached.
// Success consumes the code: it never validates again.
func (e *Engine) VerifyCode(ctx context.Context, subject, submitted string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidArgument)
	}
	if submitted == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidArgument)
	}

	if err := e.requireUnlocked(ctx, e.codeLockout, subject); err != nil {
		e.emitAudit(ctx, AuditCodeVerify, subject, "", false, err, nil)
		return err
	}

	rec, err := e.codes.Get(ctx, subject)
	if err != nil {
		if errors.Is(err, stores.ErrRecordNotFound) {
			e.emitAudit(ctx, AuditCodeVerify, subject, "", false, ErrCodeNotFound, nil)
			return ErrCodeNotFound
		}
		return backendErr(err)
	}

	if rec.IsUsed {
		e.emitAudit(ctx, AuditCodeVerify, subject, "", false, ErrCodeAlreadyUsed, nil)
		return ErrCodeAlreadyUsed
	}

	now := e.now()
	if e.recordExpired(rec, now) {
		if err := e.purgeCodeState(ctx, subject); err != nil {
			return err
		}
		e.metrics.Inc(MetricCodeExpired)
		e.emitAudit(ctx, AuditCodeVerify, subject, "", false, ErrCodeExpired, nil)
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(submitted)) != 1 {
		breached, attErr := e.failed.RecordFailure(ctx, subject)
		if attErr != nil {
			return backendErr(attErr)
		}
		if breached {
			if lockErr := e.codeLockout.Lock(ctx, subject, now); lockErr != nil {
				return backendErr(lockErr)
			}
			e.metrics.Inc(MetricLockoutTriggered)
			e.emitAudit(ctx, AuditLockout, subject, "", true, nil, map[string]string{
				"reason": "failed_attempts",
			})
		}
		e.metrics.Inc(MetricCodeMismatch)
		e.emitAudit(ctx, AuditCodeVerify, subject, "", false, ErrCodeMismatch, nil)
		return ErrCodeMismatch
	}

	rec.IsUsed = true
	rec.VerifiedAt = now
	if err := e.codes.Save(ctx, rec, e.config.OTP.Expiry); err != nil {
		return backendErr(err)
	}

	// The consumed record stays until TTL for audit reads; every tracker goes.
	if err := e.cooldown.Clear(ctx, subject); err != nil {
		return backendErr(err)
	}
	if err := e.codeLockout.Clear(ctx, subject); err != nil {
		return backendErr(err)
	}
	if err := e.failed.Reset(ctx, subject); err != nil {
		return backendErr(err)
	}

	e.metrics.Inc(MetricCodeVerified)
	e.emitAudit(ctx, AuditCodeVerify, subject, "", true, nil, nil)
	return nil
}

// ResendCode rotates the code on the subject's live record, or issues a fresh
// one when no live record exists. Rotation increments the resend count, marks
// the record unused again (the new code becomes the sole valid one), and
// refreshes the record TTL; the logical expiry stays anchored to the original
// issuance time. Reaching the resend maximum triggers lockout.
func (e *Engine) ResendCode(ctx context.Context, subject string) (*IssuedCode, error) {
	if e == nil || e.codes == nil {
		return nil, ErrEngineNotReady
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidArgument)
	}

	if err := e.requireUnlocked(ctx, e.codeLockout, subject); err != nil {
		e.emitAudit(ctx, AuditCodeResend, subject, "", false, err, nil)
		return nil, err
	}

	now := e.now()
	waiting, err := e.cooldown.Remaining(ctx, subject, now)
	if err != nil {
		return nil, backendErr(err)
	}
	if waiting > 0 {
		e.metrics.Inc(MetricCooldownHit)
		cooldownErr := &CooldownError{Remaining: waiting}
		e.emitAudit(ctx, AuditCodeResend, subject, "", false, cooldownErr, nil)
		return nil, cooldownErr
	}

	rec, err := e.codes.Get(ctx, subject)
	if err != nil && !errors.Is(err, stores.ErrRecordNotFound) {
		return nil, backendErr(err)
	}

	if rec == nil || e.recordExpired(rec, now) {
		// Absent or stale: purge leftovers and behave as a fresh issuance.
		if rec != nil {
			if err := e.purgeCodeState(ctx, subject); err != nil {
				return nil, err
			}
		}
		issued, issueErr := e.issueFresh(ctx, subject)
		if issueErr != nil {
			e.emitAudit(ctx, AuditCodeResend, subject, "", false, issueErr, nil)
			return nil, issueErr
		}
		issued.Reissued = true
		e.metrics.Inc(MetricCodeReissued)
		e.emitAudit(ctx, AuditCodeResend, subject, "", true, nil, map[string]string{
			"reissued": "true",
		})
		return issued, nil
	}

	if rec.ResendCount >= e.config.OTP.MaxResendCount {
		if lockErr := e.codeLockout.Lock(ctx, subject, now); lockErr != nil {
			return nil, backendErr(lockErr)
		}
		e.metrics.Inc(MetricResendLimitHit)
		e.metrics.Inc(MetricLockoutTriggered)
		limitErr := &ResendLimitError{Max: e.config.OTP.MaxResendCount}
		e.emitAudit(ctx, AuditLockout, subject, "", true, nil, map[string]string{
			"reason": "resend_limit",
		})
		e.emitAudit(ctx, AuditCodeResend, subject, "", false, limitErr, nil)
		return nil, limitErr
	}

	code, err := e.generate(e.config.OTP.Digits)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	rec.Code = code
	rec.ResendCount++
	rec.LastResendAt = now
	rec.IsUsed = false
	rec.VerifiedAt = time.Time{}
	if err := e.codes.Save(ctx, rec, e.config.OTP.Expiry); err != nil {
		return nil, backendErr(err)
	}
	if err := e.cooldown.Touch(ctx, subject, now); err != nil {
		return nil, backendErr(err)
	}

	e.metrics.Inc(MetricCodeResent)
	e.emitAudit(ctx, AuditCodeResend, subject, "", true, nil, map[string]string{
		"resend_count": strconv.Itoa(rec.ResendCount),
	})
	return &IssuedCode{
		Code:        code,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.CreatedAt.Add(e.config.OTP.Expiry),
		ResendCount: rec.ResendCount,
	}, nil
}

// CodeStatus reports the subject's protection state without mutating it.
func (e *Engine) CodeStatus(ctx context.Context, subject string) (*CodeStatus, error) {
	if e == nil || e.codes == nil {
		return nil, ErrEngineNotReady
	}
	if subject == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidArgument)
	}

	now := e.now()

	locked, err := e.codeLockout.IsLocked(ctx, subject)
	if err != nil {
		return nil, backendErr(err)
	}

	status := &CodeStatus{
		IsLockedOut:    locked,
		MaxResendCount: e.config.OTP.MaxResendCount,
	}

	if locked {
		remaining, remErr := e.codeLockout.Remaining(ctx, subject, now)
		if remErr != nil {
			return nil, backendErr(remErr)
		}
		status.LockoutRemaining = remaining
	}

	waiting, err := e.cooldown.Remaining(ctx, subject, now)
	if err != nil {
		return nil, backendErr(err)
	}
	status.CooldownRemaining = waiting

	rec, err := e.codes.Get(ctx, subject)
	if err != nil && !errors.Is(err, stores.ErrRecordNotFound) {
		return nil, backendErr(err)
	}
	if rec != nil && !e.recordExpired(rec, now) {
		status.HasActiveCode = true
		status.ResendCount = rec.ResendCount
		status.ExpiresIn = rec.CreatedAt.Add(e.config.OTP.Expiry).Sub(now)
	}

	status.CanResend = !status.IsLockedOut &&
		status.CooldownRemaining == 0 &&
		status.ResendCount < e.config.OTP.MaxResendCount

	return status, nil
}

// CleanupCode removes every OTP-flow key for a subject, including an active
// lockout. It exists for administrative and test use; the request path never
// unlocks anything.
func (e *Engine) CleanupCode(ctx context.Context, subject string) error {
	if e == nil || e.codes == nil {
		return ErrEngineNotReady
	}
	if subject == "" {
		return fmt.Errorf("%w: empty subject", ErrInvalidArgument)
	}

	if err := e.purgeCodeState(ctx, subject); err != nil {
		return err
	}
	e.emitAudit(ctx, AuditCodeCleanup, subject, "", true, nil, nil)
	return nil
}

// recordExpired applies the expiry rule: a record is expired once now passes
// createdAt + Expiry. A zero createdAt (missing or unparsable timestamp)
// reads as expired, failing open toward re-issuance.
func (e *Engine) recordExpired(rec *stores.CodeRecord, now time.Time) bool {
	if rec.CreatedAt.IsZero() {
		return true
	}
	return now.After(rec.CreatedAt.Add(e.config.OTP.Expiry))
}
