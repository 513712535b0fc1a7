package metrics

import (
	"sync/atomic"
	"time"
)

// BucketCount is the number of latency buckets, the last one being +Inf.
const BucketCount = 8

const cacheLineSize = 64

// BucketBounds are the inclusive upper bounds of the finite buckets.
var BucketBounds = [BucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Set holds a fixed number of counters and histograms addressed by index.
// A nil or disabled Set ignores writes and reads as zero.
type Set struct {
	enabled    bool
	latency    bool
	counters   []paddedCounter
	histograms []histogram
}

// New allocates a Set with n slots.
func New(n int, enabled, latency bool) *Set {
	s := &Set{
		enabled: enabled,
		latency: enabled && latency,
	}
	if enabled {
		s.counters = make([]paddedCounter, n)
	}
	if s.latency {
		s.histograms = make([]histogram, n)
	}
	return s
}

func (s *Set) Enabled() bool { return s != nil && s.enabled }

func (s *Set) LatencyEnabled() bool { return s != nil && s.latency }

// Inc adds one to counter id.
func (s *Set) Inc(id int) {
	if !s.Enabled() || id < 0 || id >= len(s.counters) {
		return
	}
	atomic.AddUint64(&s.counters[id].value, 1)
}

// Observe records d in histogram id.
func (s *Set) Observe(id int, d time.Duration) {
	if !s.LatencyEnabled() || id < 0 || id >= len(s.histograms) {
		return
	}
	atomic.AddUint64(&s.histograms[id].buckets[BucketIndex(d)], 1)
}

// Value loads counter id.
func (s *Set) Value(id int) uint64 {
	if !s.Enabled() || id < 0 || id >= len(s.counters) {
		return 0
	}
	return atomic.LoadUint64(&s.counters[id].value)
}

// Buckets returns a non-cumulative copy of histogram id.
func (s *Set) Buckets(id int) []uint64 {
	if !s.LatencyEnabled() || id < 0 || id >= len(s.histograms) {
		return nil
	}
	out := make([]uint64, BucketCount)
	for i := range out {
		out[i] = atomic.LoadUint64(&s.histograms[id].buckets[i])
	}
	return out
}

// BucketIndex returns the bucket d falls into.
func BucketIndex(d time.Duration) int {
	for i, bound := range BucketBounds {
		if d <= bound {
			return i
		}
	}
	return BucketCount - 1
}
