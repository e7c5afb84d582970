package goOTP

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricCodeIssued counts fresh code issuances.
	MetricCodeIssued MetricID = iota
	// MetricCodeVerified counts successful verifications.
	MetricCodeVerified
	// MetricCodeMismatch counts mismatched verification attempts.
	MetricCodeMismatch
	// MetricCodeExpired counts verifications rejected for expiry.
	MetricCodeExpired
	// MetricCodeResent counts in-place code rotations.
	MetricCodeResent
	// MetricCodeReissued counts resends that fell back to fresh issuance.
	MetricCodeReissued
	// MetricCooldownHit counts resends rejected inside the cooldown window.
	MetricCooldownHit
	// MetricResendLimitHit counts resends rejected at the resend maximum.
	MetricResendLimitHit
	// MetricLockoutTriggered counts lockouts set by either flow.
	MetricLockoutTriggered
	// MetricLockedOutRejected counts operations rejected by an active lockout.
	MetricLockedOutRejected
	// MetricResetRequestBlocked counts reset requests denied at the hourly cap.
	MetricResetRequestBlocked
	// MetricResetAttemptBlocked counts reset attempts denied at the attempt cap.
	MetricResetAttemptBlocked
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is an allocation-free atomic counter registry. A nil or disabled
// registry accepts increments and reports zeros.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// NewMetrics creates the counter registry.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Get reads one counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || !m.enabled || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// Snapshot copies every counter. Counters incremented concurrently may or may
// not be reflected; the snapshot is consistent per counter, not across them.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, metricIDCount)}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
