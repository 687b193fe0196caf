package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter reads on every collection. *phoneauth.Engine
// implements it.
type Source interface {
	MetricsSnapshot() phoneauth.MetricsSnapshot
	AuditDroppedByType() map[string]uint64
}

type series struct {
	id    phoneauth.MetricID
	attrs metric.MeasurementOption
}

type counterFamily struct {
	instrument metric.Int64ObservableCounter
	series     []series
}

type histogramFamily struct {
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	series  []histogramSeries
}

type histogramSeries struct {
	id       phoneauth.MetricID
	perBound []metric.MeasurementOption
	total    metric.MeasurementOption
}

// OTelExporter publishes engine metrics through observable instruments. The
// family label of each series becomes an attribute.
type OTelExporter struct {
	source       Source
	registration metric.Registration
	counters     []counterFamily
	histograms   []histogramFamily
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments on meter that read from engine.
func NewOTelExporter(meter metric.Meter, engine *phoneauth.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers instruments on meter that read from
// source.
func NewOTelExporterFromSource(meter metric.Meter, source Source) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	exp := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, fam := range internaldefs.CounterFamilies {
		ins, err := meter.Int64ObservableCounter(fam.Name, metric.WithDescription(fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", fam.Name, err)
		}
		cf := counterFamily{instrument: ins}
		for _, s := range fam.Series {
			cf.series = append(cf.series, series{id: s.ID, attrs: attrs(fam.Label, s.Value)})
		}
		exp.counters = append(exp.counters, cf)
		observables = append(observables, ins)
	}

	for _, fam := range internaldefs.HistogramFamilies {
		buckets, err := meter.Int64ObservableGauge(fam.Name+"_bucket", metric.WithDescription("Cumulative bucket count. "+fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create bucket gauge %s: %w", fam.Name, err)
		}
		count, err := meter.Int64ObservableGauge(fam.Name+"_count", metric.WithDescription("Sample count. "+fam.Help))
		if err != nil {
			return nil, fmt.Errorf("create count gauge %s: %w", fam.Name, err)
		}
		hf := histogramFamily{buckets: buckets, count: count}
		for _, s := range fam.Series {
			hs := histogramSeries{id: s.ID, total: attrs(fam.Label, s.Value)}
			for _, le := range internaldefs.HistogramBounds {
				hs.perBound = append(hs.perBound, metric.WithAttributes(
					attribute.String(fam.Label, s.Value),
					attribute.String("le", le),
				))
			}
			hf.series = append(hf.series, hs)
		}
		exp.histograms = append(exp.histograms, hf)
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create audit dropped counter: %w", err)
	}
	exp.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(exp.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	exp.registration = reg
	return exp, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, cf := range e.counters {
		for _, s := range cf.series {
			o.ObserveInt64(cf.instrument, int64(snapshot.Counters[s.id]), s.attrs)
		}
	}

	for _, hf := range e.histograms {
		for _, s := range hf.series {
			cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[s.id]))
			for i, opt := range s.perBound {
				o.ObserveInt64(hf.buckets, int64(cumulative[i]), opt)
			}
			o.ObserveInt64(hf.count, int64(cumulative[len(cumulative)-1]), s.total)
		}
	}

	for eventType, n := range e.source.AuditDroppedByType() {
		o.ObserveInt64(e.auditDropped, int64(n), metric.WithAttributes(attribute.String("event_type", eventType)))
	}
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}

func attrs(label, value string) metric.MeasurementOption {
	if label == "" {
		return metric.WithAttributes()
	}
	return metric.WithAttributes(attribute.String(label, value))
}
