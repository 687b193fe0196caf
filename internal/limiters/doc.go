// Package limiters provides the abuse policies phoneauth applies before any
// provider round-trip, built on top of the internal/rate counter.
//
// # Limiters
//
//   - [ChallengeLimiter]: min-interval cooldown, then rolling-hour cap, per challenge target.
//   - [VerifyLimiter]: per-target redemption throttle.
//
// All limiters are nil-safe: calling Check on a nil receiver allows the call.
//
// # Architecture boundaries
//
// Each limiter owns its own operation names inside the rate key namespace.
// Counters are never reset by a limiter: abuse counting is not reversible by
// the caller.
package limiters
