package authclient

import (
	"time"

	"github.com/MrEthical07/authclient/internal/metrics"
)

// MetricID identifies one client counter or histogram.
type MetricID uint16

const (
	// MetricRequestSuccess counts logical requests that returned a 2xx.
	MetricRequestSuccess MetricID = iota
	// MetricRequestFailure counts logical requests that returned an error.
	MetricRequestFailure
	// MetricAuthRecovered counts 401s hidden from the caller by a refresh and
	// replay.
	MetricAuthRecovered
	// MetricAuthFailed counts 401s that ended in a cleared session.
	MetricAuthFailed
	// MetricReplayIssued counts replays sent after a 401.
	MetricReplayIssued
	MetricRefreshSuccess
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that shared an in-flight refresh.
	MetricRefreshCoalesced
	// MetricProactiveRefresh counts refreshes started before dispatch.
	MetricProactiveRefresh
	MetricForbidden
	MetricNotFound
	MetricServerError
	MetricRequestError
	MetricNetworkError
	MetricMalformedResponse
	MetricLoginSuccess
	MetricLoginFailure
	MetricRegisterSuccess
	MetricRegisterFailure
	MetricLogout
	MetricSessionCleared
	MetricRedirect
	// MetricStorageFailure counts session writes the storage backend refused.
	MetricStorageFailure
	// MetricRequestLatency is the per-attempt transport latency histogram.
	MetricRequestLatency
	metricIDCount
)

// Metrics holds the client's counters. A nil or disabled Metrics is inert.
type Metrics struct {
	set *metrics.Set
}

// MetricsSnapshot is a point-in-time copy of all metrics. Histogram buckets
// are non-cumulative, bounded at 5, 10, 25, 50, 100, 250, 500ms and +Inf.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics allocates metrics according to cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{set: metrics.New(int(metricIDCount), cfg.Enabled, cfg.EnableLatencyHistograms)}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.set.Enabled()
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.set.LatencyEnabled()
}

// Inc increments counter id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil {
		return
	}
	m.set.Inc(int(id))
}

// Observe records a latency sample. Only MetricRequestLatency is a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || id != MetricRequestLatency {
		return
	}
	m.set.Observe(int(id), d)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil {
		return 0
	}
	return m.set.Value(int(id))
}

// Snapshot copies every counter and, when enabled, the latency histogram.
// A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if !m.Enabled() {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricRequestLatency {
			continue
		}
		s.Counters[id] = m.set.Value(int(id))
	}
	if m.LatencyEnabled() {
		s.Histograms[MetricRequestLatency] = m.set.Buckets(int(MetricRequestLatency))
	}
	return s
}
