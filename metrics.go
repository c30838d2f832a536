package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one session counter or histogram.
type MetricID uint16

const (
	// MetricLogin counts completed logins.
	MetricLogin MetricID = iota
	// MetricLogout counts terminal clears, forced or requested.
	MetricLogout
	// MetricLogoutInvalidateFailure counts server-side invalidations that failed during LogoutAsync.
	MetricLogoutInvalidateFailure
	// MetricSessionExpired counts forced logouts caused by an expired token.
	MetricSessionExpired
	// MetricBranchSwitchSuccess counts confirmed branch switches.
	MetricBranchSwitchSuccess
	// MetricBranchSwitchFailure counts branch switches rolled back after a failed confirmation.
	MetricBranchSwitchFailure
	// MetricBranchSwitchRejected counts branch switches refused by the transition guard or membership check.
	MetricBranchSwitchRejected
	// MetricAcademicYearSwitchSuccess counts academic year switches.
	MetricAcademicYearSwitchSuccess
	// MetricAcademicYearSwitchRejected counts academic year switches refused by the transition guard.
	MetricAcademicYearSwitchRejected
	// MetricRefreshSuccess counts applied token refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed token refreshes.
	MetricRefreshFailure
	// MetricRefreshRejected counts refresh calls refused because a transition was in flight.
	MetricRefreshRejected
	// MetricRefreshStale counts refresh results discarded after a login or logout.
	MetricRefreshStale
	// MetricRehydrateAuthenticated counts rehydrations that restored a live session.
	MetricRehydrateAuthenticated
	// MetricRehydrateLoggedOut counts rehydrations that ended logged out.
	MetricRehydrateLoggedOut
	// MetricRehydrateExpired counts rehydrations that found an expired token.
	MetricRehydrateExpired
	// MetricRehydrateProfilePending counts rehydrations that kept a token without a user.
	MetricRehydrateProfilePending
	// MetricStorageRecovered counts corrupt persisted fields treated as absent.
	MetricStorageRecovered
	// MetricStorageWriteFailure counts failed store writes.
	MetricStorageWriteFailure
	// MetricBranchConfirmLatency observes the duration of branch confirmation calls.
	MetricBranchConfirmLatency
	// MetricRefreshLatency observes the duration of token refresh calls.
	MetricRefreshLatency
	metricIDCount
)

// histBounds are the bucket upper bounds; the last bucket is unbounded.
var histBounds = [...]time.Duration{
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
	2500 * time.Millisecond,
}

const histBucketCount = len(histBounds) + 1

// latencyIDs are the only IDs backed by a histogram, in slot order.
var latencyIDs = [...]MetricID{MetricBranchConfirmLatency, MetricRefreshLatency}

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and latency histograms. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counterSlot
	latency       [len(latencyIDs)][histBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns metrics configured by cfg. Latency histograms are only
// recorded when metrics as a whole are enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount || latencySlot(id) >= 0 {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d into the histogram for id. Only latency IDs accept
// observations.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	if slot := latencySlot(id); slot >= 0 {
		m.latency[slot][bucketIndex(d)].Add(1)
	}
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter and, when latency is enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) < 0 {
			s.Counters[id] = m.counters[id].n.Load()
		}
	}
	if m.enableLatency {
		for slot, id := range latencyIDs {
			buckets := make([]uint64, histBucketCount)
			for i := range buckets {
				buckets[i] = m.latency[slot][i].Load()
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

func latencySlot(id MetricID) int {
	for slot, l := range latencyIDs {
		if l == id {
			return slot
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range histBounds {
		if d <= bound {
			return i
		}
	}
	return len(histBounds)
}
