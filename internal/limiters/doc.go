// Package limiters provides the protection primitives the engine composes:
//
//   - [Lockout] — binary locked/unlocked state per key, TTL-cleared only.
//   - [FailedAttempts] — windowed mismatch counter that reports threshold breach.
//   - [WindowCounter] — fixed-window counter (TTL set on first increment).
//   - [Cooldown] — minimum spacing tracker between repeats of one action.
//
// Counters use Redis INCR so concurrent failures never under-count.
//
// # Architecture boundaries
//
// Each primitive owns its Redis key namespace and error value. Policy
// thresholds come from the constructor; consequences (what a breach means)
// are decided by the engine, never here.
package limiters
