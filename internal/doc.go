// Package internal contains helper utilities that are intentionally private to
// phoneauth: secure random generation and credential digests.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - challenge: one-time-code challenge creation and redemption
//   - enginetest: fully wired engines for tests outside the root package
//   - httpapi: echo HTTP transport over the Engine
//   - limiters: challenge cooldown/hourly cap and verify throttle
//   - logging: zerolog construction for binaries
//   - metrics: lock-free counters and latency histograms
//   - rate: core Redis-backed rate limit primitives
//   - retry: the single exponential backoff policy
//   - sessions: per-device session issuance, rotation, revocation
//   - store: relational records and transactional contract
//
// # What this package must NOT do
//
//   - Export types that appear in the public phoneauth API.
//   - Be imported by any package outside the phoneauth module.
package internal
