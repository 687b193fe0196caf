// Package prometheus provides Prometheus collectors for phoneauth metrics.
//
// [NewPrometheusExporter] accepts a [phoneauth.Engine] and exposes an [http.Handler]
// that renders all phoneauth counters and histograms in Prometheus text exposition format.
// Engine counters are grouped into labelled families such as
// phoneauth_sessions_total{event="refreshed"}. Challenge latency is the
// phoneauth_challenge_latency_seconds histogram labelled by phase, and
// dispatcher drops are labelled by event_type.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry. Callers mount the Handler.
//   - Mutate engine state.
package prometheus
