// Package audit provides the audit event model and asynchronous dispatch for
// the OTP and reset-guard flows.
//
// Events carry the acted-on subject or email, the outcome, and non-secret
// metadata. Code values never enter an event. Dispatch is fire-and-forget:
// a slow sink can delay or drop events but never blocks a protection decision.
package audit
