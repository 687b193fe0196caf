// Package phoneauth turns a phone number, an email address, or a federated
// identity assertion into durable, revocable, per-device sessions.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// phoneauth is the public surface. It exposes [Engine], [Builder], [Config], the error
// taxonomy ([Kind], [Error]), and value types (AuthResult, SessionInfo, etc.). Challenge
// redemption, session issuance, rate limiting, persistence, and event dispatch live under
// internal/ and are never exported.
//
// # Transactions
//
// Every operation that redeems a code runs redemption, account changes, and session
// issuance in one datastore transaction. A wrong code commits the consumed attempt and
// nothing else; any other failure rolls everything back. Redemption transactions run
// detached from the caller's cancellation, bounded by OTP.RedeemTimeout.
//
// # What this package must NOT do
//
//   - Expose internal stores, limiter keys, or token digests in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports phoneauth (no import cycles).
//   - Return internal failure details to callers; they are logged and reported as
//     ErrInternal.
package phoneauth
