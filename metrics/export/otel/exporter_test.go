package otel

import (
	"context"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrEthical07/phoneauth"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot phoneauth.MetricsSnapshot
	dropped  map[string]uint64
}

func (f *fakeSource) MetricsSnapshot() phoneauth.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := phoneauth.MetricsSnapshot{
		Counters:   make(map[phoneauth.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[phoneauth.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		next := make([]uint64, len(buckets))
		copy(next, buckets)
		out.Histograms[k] = next
	}
	return out
}

func (f *fakeSource) AuditDroppedByType() map[string]uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]uint64, len(f.dropped))
	for k, v := range f.dropped {
		out[k] = v
	}
	return out
}

// findPoint returns the data point of name whose attributes include every
// key/value pair in kv.
func findPoint(t *testing.T, rm metricdata.ResourceMetrics, name string, kv ...string) (int64, bool) {
	t.Helper()
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			var points []metricdata.DataPoint[int64]
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				points = data.DataPoints
			case metricdata.Gauge[int64]:
				points = data.DataPoints
			}
			for _, p := range points {
				if hasAttributes(p.Attributes, kv) {
					return p.Value, true
				}
			}
		}
	}
	return 0, false
}

func hasAttributes(set attribute.Set, kv []string) bool {
	for i := 0; i+1 < len(kv); i += 2 {
		v, ok := set.Value(attribute.Key(kv[i]))
		if !ok || v.AsString() != kv[i+1] {
			return false
		}
	}
	return true
}

func TestExporterRegistersAndCollects(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("phoneauth-test")

	src := &fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters: map[phoneauth.MetricID]uint64{
				phoneauth.MetricOTPSent: 3,
			},
			Histograms: map[phoneauth.MetricID][]uint64{
				phoneauth.MetricRedeemLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: map[string]uint64{"otp_sent": 1},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics, got none")
	}

	if v, ok := findPoint(t, rm, "phoneauth_otp_challenges_total", "outcome", "sent"); !ok || v != 3 {
		t.Fatalf("otp sent = %d, %v", v, ok)
	}
	if v, ok := findPoint(t, rm, "phoneauth_challenge_latency_seconds_count", "phase", "redeem"); !ok || v != 8 {
		t.Fatalf("redeem count = %d, %v", v, ok)
	}
	if v, ok := findPoint(t, rm, "phoneauth_challenge_latency_seconds_bucket", "phase", "redeem", "le", "+Inf"); !ok || v != 8 {
		t.Fatalf("+Inf bucket = %d, %v", v, ok)
	}
	if v, ok := findPoint(t, rm, "phoneauth_audit_dropped_total", "event_type", "otp_sent"); !ok || v != 1 {
		t.Fatalf("audit dropped = %d, %v", v, ok)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("phoneauth-test")

	if _, err := NewOTelExporterFromSource(meter, nil); err == nil {
		t.Fatal("expected error for nil source")
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("phoneauth-test")

	src := &fakeSource{
		snapshot: phoneauth.MetricsSnapshot{
			Counters: map[phoneauth.MetricID]uint64{
				phoneauth.MetricOTPSent: 1,
			},
			Histograms: map[phoneauth.MetricID][]uint64{
				phoneauth.MetricRedeemLatency: {1, 0, 0, 0, 0, 0, 0, 0},
			},
		},
	}

	exp, err := NewOTelExporterFromSource(meter, src)
	if err != nil {
		t.Fatalf("NewOTelExporterFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[phoneauth.MetricOTPSent] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
