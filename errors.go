package goOTP

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrLockedOut indicates the subject is inside an active lockout window.
	ErrLockedOut = errors.New("subject locked out")
	// ErrResendCooldown indicates the resend cooldown has not elapsed yet.
	ErrResendCooldown = errors.New("resend cooldown active")
	// ErrCodeNotFound indicates no code record exists for the subject.
	ErrCodeNotFound = errors.New("no active code found")
	// ErrCodeAlreadyUsed indicates the stored code was already consumed.
	ErrCodeAlreadyUsed = errors.New("code already used")
	// ErrCodeExpired indicates the stored code is past its expiry window.
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeMismatch indicates the submitted code does not match the stored one.
	ErrCodeMismatch = errors.New("code mismatch")
	// ErrResendLimitReached indicates the resend maximum was hit and lockout was triggered.
	ErrResendLimitReached = errors.New("resend limit reached")
	// ErrResetRequestLimited indicates the hourly reset-request cap was reached.
	ErrResetRequestLimited = errors.New("reset request limit reached")
	// ErrResetAttemptsExceeded indicates the reset-attempt cap was reached and lockout was triggered.
	ErrResetAttemptsExceeded = errors.New("reset attempts exceeded")
	// ErrInvalidArgument indicates a missing or malformed caller-supplied argument.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrBackendUnavailable indicates the ephemeral store failed or was unreachable.
	ErrBackendUnavailable = errors.New("store backend unavailable")
	// ErrEngineNotReady indicates the engine was constructed without its dependencies.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedOutError reports an active lockout and the time left on it.
// errors.Is(err, ErrLockedOut) matches it.
type LockedOutError struct {
	Remaining time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("subject locked out for another %s", e.Remaining.Round(time.Second))
}

func (e *LockedOutError) Is(target error) bool { return target == ErrLockedOut }

// CooldownError reports an active resend cooldown and the time left on it.
// errors.Is(err, ErrResendCooldown) matches it.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend cooldown active for another %s", e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrResendCooldown }

// ResendLimitError reports that the configured resend maximum was reached.
// errors.Is(err, ErrResendLimitReached) matches it.
type ResendLimitError struct {
	Max int
}

func (e *ResendLimitError) Error() string {
	return fmt.Sprintf("resend limit of %d reached", e.Max)
}

func (e *ResendLimitError) Is(target error) bool { return target == ErrResendLimitReached }

// ResetRequestLimitError reports that the hourly reset-request cap was reached.
// errors.Is(err, ErrResetRequestLimited) matches it.
type ResetRequestLimitError struct {
	Max int
}

func (e *ResetRequestLimitError) Error() string {
	return fmt.Sprintf("maximum %d reset requests per hour exceeded", e.Max)
}

func (e *ResetRequestLimitError) Is(target error) bool { return target == ErrResetRequestLimited }

// ResetAttemptsError reports that the reset-attempt cap was reached and the
// subject was locked as a side effect. errors.Is(err, ErrResetAttemptsExceeded)
// matches it.
type ResetAttemptsError struct {
	LockedFor time.Duration
}

func (e *ResetAttemptsError) Error() string {
	return fmt.Sprintf("too many reset attempts, locked for %s", e.LockedFor.Round(time.Second))
}

func (e *ResetAttemptsError) Is(target error) bool { return target == ErrResetAttemptsExceeded }
