// Package stores provides the Redis-backed record store for one-time codes.
//
// # Design
//
// The code record is persisted as a single versioned value under one key with
// a TTL, encoded as a field-delimited key-value text blob with an explicit
// encode/decode pair. Structural corruption decodes as "record absent";
// an unparsable created_at decodes as a zero timestamp, which callers treat
// as expired. Both fail toward re-issuance, never toward a stuck state.
//
// # Architecture boundaries
//
// This package owns persistence and encoding only. It does not generate
// codes, count failures, or decide outcomes; that belongs to the engine and
// internal/limiters.
package stores
