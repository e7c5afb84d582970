package goOTP

import (
	"errors"
	"time"
)

// Config carries all engine tunables. Populate it once before construction and
// treat it as immutable afterwards.
type Config struct {
	OTP     OTPConfig
	Reset   ResetGuardConfig
	Metrics MetricsConfig
	Audit   AuditConfig
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig governs the one-time-code manager.
type OTPConfig struct {
	// Expiry is how long an issued code stays valid. Default 5m.
	Expiry time.Duration
	// MaxResendCount is the number of resends allowed per issued code before
	// lockout triggers. Default 3.
	MaxResendCount int
	// ResendCooldown is the minimum spacing between resend calls. Default 60s.
	ResendCooldown time.Duration
	// LockoutDuration is how long a triggered lockout lasts. It clears only by
	// TTL expiry; there is no manual unlock. Default 20m.
	LockoutDuration time.Duration
	// Digits is the code length, 4 to 10. Default 6.
	Digits int
	// MaxFailedAttempts is the number of mismatched verifications inside
	// FailedAttemptsWindow that triggers lockout. Default 5.
	MaxFailedAttempts int
	// FailedAttemptsWindow is the counting window for mismatches. The window
	// is refreshed on every failure. Default 10m.
	FailedAttemptsWindow time.Duration
}

/*
====================================
RESET GUARD CONFIG
====================================
*/

// ResetGuardConfig governs the password-reset attempt guard.
type ResetGuardConfig struct {
	// MaxRequestsPerHour caps accepted reset requests per email per fixed
	// one-hour window. Default 3.
	MaxRequestsPerHour int
	// MaxAttempts caps failed reset confirmations per email per fixed
	// one-hour window before lockout triggers. Default 5.
	MaxAttempts int
	// LockoutDuration is how long a triggered reset lockout lasts. Default 20m.
	LockoutDuration time.Duration
}

// MetricsConfig enables the in-process counter registry.
type MetricsConfig struct {
	Enabled bool
}

// AuditConfig enables asynchronous audit event dispatch.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// DefaultConfig returns the documented baseline configuration.
func DefaultConfig() Config {
	return Config{
		OTP: OTPConfig{
			Expiry:               5 * time.Minute,
			MaxResendCount:       3,
			ResendCooldown:       60 * time.Second,
			LockoutDuration:      20 * time.Minute,
			Digits:               6,
			MaxFailedAttempts:    5,
			FailedAttemptsWindow: 10 * time.Minute,
		},
		Reset: ResetGuardConfig{
			MaxRequestsPerHour: 3,
			MaxAttempts:        5,
			LockoutDuration:    20 * time.Minute,
		},
		Metrics: MetricsConfig{Enabled: true},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	if c.OTP.Expiry <= 0 {
		return errors.New("config: OTP.Expiry must be positive")
	}
	if c.OTP.MaxResendCount < 1 {
		return errors.New("config: OTP.MaxResendCount must be at least 1")
	}
	if c.OTP.ResendCooldown <= 0 {
		return errors.New("config: OTP.ResendCooldown must be positive")
	}
	if c.OTP.LockoutDuration <= 0 {
		return errors.New("config: OTP.LockoutDuration must be positive")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("config: OTP.Digits must be between 4 and 10")
	}
	if c.OTP.MaxFailedAttempts < 1 {
		return errors.New("config: OTP.MaxFailedAttempts must be at least 1")
	}
	if c.OTP.FailedAttemptsWindow <= 0 {
		return errors.New("config: OTP.FailedAttemptsWindow must be positive")
	}
	if c.Reset.MaxRequestsPerHour < 1 {
		return errors.New("config: Reset.MaxRequestsPerHour must be at least 1")
	}
	if c.Reset.MaxAttempts < 1 {
		return errors.New("config: Reset.MaxAttempts must be at least 1")
	}
	if c.Reset.LockoutDuration <= 0 {
		return errors.New("config: Reset.LockoutDuration must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("config: Audit.BufferSize must be at least 1 when audit is enabled")
	}
	return nil
}
