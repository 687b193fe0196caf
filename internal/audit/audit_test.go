package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDeliversBeforeClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 64}, sink)

	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), Event{EventType: "otp_sent"})
	}
	d.Close()

	if got := sink.count.Load(); got != 50 {
		t.Fatalf("expected 50 delivered events, got %d", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &gateSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "otp_sent"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops under backpressure")
	}
	close(sink.gate)
	d.Close()
}

type recordingSink struct {
	gate  chan struct{}
	mu    sync.Mutex
	types []string
	ctxs  []context.Context
}

func (s *recordingSink) Emit(ctx context.Context, ev Event) {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.types = append(s.types, ev.EventType)
	s.ctxs = append(s.ctxs, ctx)
	s.mu.Unlock()
}

func TestDispatcherRetainsSecurityEventsWhenFull(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
		Retain:     []string{"refresh_reuse_detected"},
	}, sink)

	for i := 0; i < 3; i++ {
		d.Emit(context.Background(), Event{EventType: "otp_sent"})
	}

	emitted := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{EventType: "refresh_reuse_detected"})
		close(emitted)
	}()
	close(sink.gate)
	<-emitted
	d.Close()

	byType := d.DroppedByType()
	if byType["otp_sent"] == 0 {
		t.Fatalf("expected otp_sent drops, got %v", byType)
	}
	if byType["refresh_reuse_detected"] != 0 {
		t.Fatalf("retained event dropped: %v", byType)
	}
	if d.Dropped() != byType["otp_sent"] {
		t.Fatalf("total %d does not match per-type counts %v", d.Dropped(), byType)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.types[len(sink.types)-1] != "refresh_reuse_detected" {
		t.Fatalf("retained event not delivered last: %v", sink.types)
	}
}

func TestDispatcherCancelledEmitCountsAsDrop(t *testing.T) {
	sink := &recordingSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// one event parked in the sink, one filling the buffer
	d.Emit(context.Background(), Event{EventType: "session_issued"})
	d.Emit(context.Background(), Event{EventType: "session_issued"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "logout_session"})

	close(sink.gate)
	d.Close()

	if got := d.DroppedByType()["logout_session"]; got != 1 {
		t.Fatalf("expected cancelled emit to be counted, got %d", got)
	}
}

func TestDispatcherBoundsSinkDelivery(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, SinkTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{EventType: "otp_sent"})
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.ctxs) != 1 {
		t.Fatalf("expected one delivery, got %d", len(sink.ctxs))
	}
	if _, ok := sink.ctxs[0].Deadline(); !ok {
		t.Fatal("sink delivery carried no deadline")
	}
}

func TestDroppedTypesSorted(t *testing.T) {
	got := DroppedTypes(map[string]uint64{"otp_sent": 1, "logout_all": 2, "email_verified": 1})
	want := []string{"email_verified", "logout_all", "otp_sent"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestDispatcherEmitAfterCloseIsIgnored(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Close()
	d.Emit(context.Background(), Event{EventType: "late"})
	if sink.count.Load() != 0 {
		t.Fatal("events after close must not be delivered")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewJSONWriterSink(&buf)
	s.Emit(context.Background(), Event{EventType: "session_issued", UserID: "u1", Success: true})

	var got Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventType != "session_issued" || got.UserID != "u1" || !got.Success {
		t.Fatalf("unexpected event %+v", got)
	}
}

type fakePublisher struct {
	mu   sync.Mutex
	subj []string
	data [][]byte
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subj = append(p.subj, subject)
	p.data = append(p.data, data)
	return nil
}

func TestNATSSinkPublishesPerEventType(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "", zerolog.Nop())

	s.Emit(context.Background(), Event{Timestamp: time.Unix(0, 0).UTC(), EventType: "refresh_reuse_detected", UserID: "u1"})

	if len(pub.subj) != 1 || pub.subj[0] != "phoneauth.events.refresh_reuse_detected" {
		t.Fatalf("unexpected subjects %v", pub.subj)
	}
	var got Event
	if err := json.Unmarshal(pub.data[0], &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.UserID != "u1" {
		t.Fatalf("unexpected payload %+v", got)
	}
}

func TestNATSSinkSwallowsPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	s := NewNATSSink(pub, "auth", zerolog.Nop())
	s.Emit(context.Background(), Event{EventType: "x"})
	if len(pub.subj) != 0 {
		t.Fatal("nothing should be recorded on failure")
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), Event{})
	if a.count.Load() != 1 || b.count.Load() != 1 {
		t.Fatal("every sink must receive the event")
	}
}
