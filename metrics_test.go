package phoneauth

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricOTPSent)

	if got := m.Value(MetricOTPSent); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricOTPSent)
	m.Inc(MetricOTPSent)
	m.Inc(MetricOTPSent)

	if got := m.Value(MetricOTPSent); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricRedeemLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricRedeemLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricOTPSent, time.Millisecond)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricOTPSent]; ok {
		t.Fatal("counter id grew a histogram")
	}
	if len(snap.Histograms) != 2 {
		t.Fatalf("expected send and redeem histograms, got %d", len(snap.Histograms))
	}
}

func TestEngineRecordsFlowMetrics(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) { c.Metrics.EnableLatencyHistograms = true })
	h.send(t, testPhone)
	if _, err := h.verify(testPhone, wrongCode, "device-a"); err == nil {
		t.Fatal("expected wrong code to fail")
	}
	if _, err := h.verify(testPhone, testCode, "device-a"); err != nil {
		t.Fatalf("VerifyCode failed: %v", err)
	}

	snap := h.engine.MetricsSnapshot()
	want := map[MetricID]uint64{
		MetricOTPSent:          1,
		MetricOTPVerifyFailure: 1,
		MetricOTPVerifySuccess: 1,
		MetricUserCreated:      1,
		MetricSessionCreated:   1,
	}
	for id, v := range want {
		if snap.Counters[id] != v {
			t.Fatalf("metric %d: expected %d, got %d", id, v, snap.Counters[id])
		}
	}

	var redeems uint64
	for _, v := range snap.Histograms[MetricRedeemLatency] {
		redeems += v
	}
	if redeems != 2 {
		t.Fatalf("expected 2 redeem latency samples, got %d", redeems)
	}
}

func TestEngineRateLimitMetric(t *testing.T) {
	h := newEngineHarness(t, func(c *Config) { c.RateLimit.Cooldown = time.Minute })
	h.send(t, testPhone)
	if _, err := h.engine.SendCode(context.Background(), SendCodeRequest{CountryCode: testCC, Phone: testPhone}); err == nil {
		t.Fatal("expected cooldown")
	}
	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricOTPRateLimited] != 1 || snap.Counters[MetricOTPSendFailure] != 0 {
		t.Fatalf("unexpected counters %+v", snap.Counters)
	}
}
