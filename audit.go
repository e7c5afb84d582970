package goOTP

import (
	"context"
	"io"

	"github.com/MrEthical07/goOTP/internal/audit"
)

// AuditEvent is re-exported for sink implementations.
type AuditEvent = audit.Event

// AuditSink receives engine audit events.
type AuditSink = audit.Sink

// Audit event types emitted by the engine.
const (
	AuditCodeIssue    = "otp.issue"
	AuditCodeVerify   = "otp.verify"
	AuditCodeResend   = "otp.resend"
	AuditCodeCleanup  = "otp.cleanup"
	AuditLockout      = "otp.lockout"
	AuditResetRequest = "reset.request"
	AuditResetAttempt = "reset.attempt"
	AuditResetLockout = "reset.lockout"
	AuditResetCleared = "reset.cleared"
)

// NewAuditChannelSink returns a sink backed by a buffered channel, for tests
// and in-process consumers.
func NewAuditChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewAuditJSONWriterSink returns a sink writing one JSON event per line.
func NewAuditJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// emitAudit forwards an event through the async dispatcher. Metadata must
// never contain code or token values.
func (e *Engine) emitAudit(ctx context.Context, eventType, subject, email string, success bool, opErr error, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}

	event := audit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		Subject:   subject,
		Email:     email,
		Success:   success,
		Metadata:  metadata,
	}
	if opErr != nil {
		event.Error = opErr.Error()
	}

	e.audit.Emit(ctx, event)
}
