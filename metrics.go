package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricLoginNoPassword
	MetricTwoFactorRequired
	MetricTwoFactorSuccess
	MetricTwoFactorFailure
	MetricTwoFactorEnrolled
	MetricOTPThrottled
	MetricSessionCreated
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricRevokeAll
	MetricVerifyFailure
	MetricTokenVersionMismatch
	MetricPasswordChangeSuccess
	MetricPasswordChangeInvalidOld
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricAccountStatusChange
	MetricAccountReactivated
	MetricFederatedLoginSuccess
	MetricFederatedLoginFailure
	MetricFederatedConflict
	MetricFederatedLinked
	MetricVerifyLatency
	metricIDCount
)

// verifyBuckets are the inclusive upper edges of the Verify latency
// histogram. Anything slower lands in the final overflow bucket.
var verifyBuckets = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBuckets = len(verifyBuckets) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics is a fixed set of lock-free counters plus one latency histogram
// for Verify. A nil *Metrics records nothing.
type Metrics struct {
	on      bool
	latency bool
	slots   [metricIDCount]counterSlot
	verify  [latencyBuckets]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter. Histogram
// buckets are not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		on:      cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.on }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if m.Enabled() && id < metricIDCount {
		m.slots[id].n.Add(1)
	}
}

// Observe records d into the latency histogram. Only MetricVerifyLatency
// carries one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if id != MetricVerifyLatency || !m.LatencyEnabled() {
		return
	}
	m.verify[latencySlot(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.slots[id].n.Load()
	}
	if m.latency {
		buckets := make([]uint64, latencyBuckets)
		for i := range buckets {
			buckets[i] = m.verify[i].Load()
		}
		s.Histograms[MetricVerifyLatency] = buckets
	}
	return s
}

// latencySlot compares at millisecond resolution, so 5.9ms still counts
// as 5ms.
func latencySlot(d time.Duration) int {
	d = d.Truncate(time.Millisecond)
	for i, edge := range verifyBuckets {
		if d <= edge {
			return i
		}
	}
	return len(verifyBuckets)
}
