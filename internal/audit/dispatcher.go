package audit

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the emitting request when
	// the buffer is full. Event types listed in Retain are never dropped
	// this way.
	DropIfFull bool
	// Retain lists event types that always wait for buffer space, bounded
	// only by the emitting request's context.
	Retain []string
	// SinkTimeout bounds one delivery to the sink. Zero leaves it unbounded.
	SinkTimeout time.Duration
}

// Dispatcher relays events to a sink from a single goroutine, in emission
// order.
type Dispatcher struct {
	sink        Sink
	dropIfFull  bool
	retain      map[string]struct{}
	sinkTimeout time.Duration

	mu     sync.RWMutex // held for reading while sending on queue
	closed bool
	queue  chan Event
	idle   chan struct{}

	dropMu  sync.Mutex
	dropped map[string]uint64
	total   atomic.Uint64
}

// NewDispatcher starts a dispatcher. A disabled config yields nil, which
// is a valid no-op receiver.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:        sink,
		dropIfFull:  cfg.DropIfFull,
		retain:      make(map[string]struct{}, len(cfg.Retain)),
		sinkTimeout: cfg.SinkTimeout,
		queue:       make(chan Event, cfg.BufferSize),
		idle:        make(chan struct{}),
		dropped:     make(map[string]uint64),
	}
	for _, t := range cfg.Retain {
		d.retain[t] = struct{}{}
	}

	go d.drain()
	return d
}

func (d *Dispatcher) drain() {
	defer close(d.idle)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev Event) {
	ctx := context.Background()
	if d.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sinkTimeout)
		defer cancel()
	}
	d.sink.Emit(ctx, ev)
}

// Emit queues ev. Events emitted after Close are ignored.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if _, keep := d.retain[ev.EventType]; d.dropIfFull && !keep {
		select {
		case d.queue <- ev:
		default:
			d.drop(ev.EventType)
		}
		return
	}

	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.drop(ev.EventType)
	}
}

func (d *Dispatcher) drop(eventType string) {
	d.total.Add(1)
	d.dropMu.Lock()
	d.dropped[eventType]++
	d.dropMu.Unlock()
}

// Close stops accepting events and waits until queued ones are delivered.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

// Dropped returns the number of events lost to backpressure or cancelled
// emitters.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.total.Load()
}

// DroppedByType returns drop counts keyed by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.dropMu.Lock()
	defer d.dropMu.Unlock()
	out := make(map[string]uint64, len(d.dropped))
	for t, n := range d.dropped {
		out[t] = n
	}
	return out
}

// DroppedTypes returns the event types with at least one drop, sorted.
func DroppedTypes(counts map[string]uint64) []string {
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
