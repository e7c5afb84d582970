// Package goOTP provides an ephemeral-state protection engine for short-lived
// one-time verification codes and password-reset flows: issuance, verification,
// resend throttling, failed-attempt tracking, and progressive lockout, all
// backed by a Redis-compatible TTL key-value store.
//
// The package is the public surface. It exposes [Engine], [Config], typed
// results ([IssuedCode], [CodeStatus]), and error values. Key encoding, the
// record codec, counters, and the lockout primitive live under internal/ and
// are never exported.
//
// # Architecture boundaries
//
// goOTP never routes HTTP, delivers codes, touches the durable user record, or
// mints credentials. Callers invoke one Engine method per request; the method
// reads and conditionally mutates store state and returns a typed outcome. The
// store is the only shared mutable resource: Engine methods are safe for
// concurrent use after construction and take no locks of their own.
//
// # Failure posture
//
// Ambiguous record state fails open toward re-issuance (a malformed code
// record reads as expired or absent). Abuse counters and lockout checks fail
// closed: a store outage surfaces as [ErrBackendUnavailable] and is never
// interpreted as "not locked out". Code values are never included in error
// strings, metrics, or audit events.
package goOTP
