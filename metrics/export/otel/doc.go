// Package otel provides OpenTelemetry metric exporter bindings for phoneauth counters and
// histograms.
//
// [NewOTelExporter] registers one Int64ObservableCounter per counter family,
// with the family label as an attribute, and bucket/count gauges per latency
// family with phase and le attributes. A single callback reads
// [phoneauth.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
