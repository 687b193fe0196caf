package metrics

import (
	"sync/atomic"
	"time"
)

// ID indexes a counter or histogram slot.
type ID uint16

const (
	// BucketCount is the number of latency buckets per histogram.
	BucketCount   = 8
	cacheLineSize = 64
)

type histogram struct {
	buckets [BucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Config selects which parts of the registry record.
type Config struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// Registry holds a fixed number of counters plus latency histograms for a
// declared subset of ids. A nil *Registry records nothing.
type Registry struct {
	enabled       bool
	enableLatency bool
	counters      []paddedCounter
	histograms    []histogram
	latency       []bool
}

// Snapshot is a point-in-time copy of a registry.
type Snapshot struct {
	Counters   map[ID]uint64
	Histograms map[ID][]uint64
}

// New allocates count counter slots. Observations are accepted only for the
// ids listed in latencyIDs.
func New(cfg Config, count int, latencyIDs ...ID) *Registry {
	r := &Registry{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
		counters:      make([]paddedCounter, count),
		histograms:    make([]histogram, count),
		latency:       make([]bool, count),
	}
	for _, id := range latencyIDs {
		if int(id) < count {
			r.latency[id] = true
		}
	}
	return r
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) LatencyEnabled() bool {
	return r != nil && r.enableLatency
}

func (r *Registry) Inc(id ID) {
	if r == nil || !r.enabled || int(id) >= len(r.counters) {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

func (r *Registry) Observe(id ID, d time.Duration) {
	if r == nil || !r.enableLatency || int(id) >= len(r.latency) || !r.latency[id] {
		return
	}
	atomic.AddUint64(&r.histograms[id].buckets[BucketIndex(d)], 1)
}

func (r *Registry) Value(id ID) uint64 {
	if r == nil || int(id) >= len(r.counters) {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

// Snapshot copies every counter and, when latency is enabled, every declared
// histogram.
func (r *Registry) Snapshot() Snapshot {
	if r == nil || !r.enabled {
		return Snapshot{
			Counters:   map[ID]uint64{},
			Histograms: map[ID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[ID]uint64, len(r.counters)),
		Histograms: make(map[ID][]uint64),
	}
	for i := range r.counters {
		s.Counters[ID(i)] = atomic.LoadUint64(&r.counters[i].value)
	}
	if r.enableLatency {
		for i, on := range r.latency {
			if !on {
				continue
			}
			buckets := make([]uint64, BucketCount)
			for b := 0; b < BucketCount; b++ {
				buckets[b] = atomic.LoadUint64(&r.histograms[i].buckets[b])
			}
			s.Histograms[ID(i)] = buckets
		}
	}
	return s
}

// BucketIndex maps d onto the fixed ≤5ms … +Inf bucket layout.
func BucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
