package goOTP

import "time"

// IssuedCode is returned by [Engine.IssueCode] and [Engine.ResendCode].
// Code is the plaintext value the caller hands to its delivery channel; the
// engine itself never sends or logs it.
type IssuedCode struct {
	Code        string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ResendCount int
	// Reissued is true when a resend found no live record and issued a fresh
	// code instead of rotating the existing one.
	Reissued bool
}

// CodeStatus is the read-only view returned by [Engine.CodeStatus].
type CodeStatus struct {
	IsLockedOut       bool
	LockoutRemaining  time.Duration
	CooldownRemaining time.Duration
	HasActiveCode     bool
	ResendCount       int
	MaxResendCount    int
	ExpiresIn         time.Duration
	// CanResend is true when the subject is not locked out, no cooldown is
	// active, and the resend maximum has not been reached.
	CanResend bool
}
