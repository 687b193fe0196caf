// Package rate provides the Redis-backed windowed counter that every abuse
// policy in phoneauth is built on.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit only. The window
// therefore starts at the first request and resets when the key expires.
// Key prefix:
//   - rl:<operation>:<target>
//
// # Failure mode
//
// The limiter fails closed. When Redis is unreachable every call returns
// [ErrUnavailable]; callers must refuse the guarded operation.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Reset or decrement counters on behalf of a caller.
package rate
