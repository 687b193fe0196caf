// Package challenge creates and redeems one-time-code challenges.
//
// # Create
//
// Cooldown, then hourly cap, then the provider call, then the row insert.
// A provider failure leaves no row behind. Limiter increments are never
// undone.
//
// # Redeem
//
// Runs inside the caller's transaction and locks the newest unverified
// challenge for (target, type). Policy order:
//
//  1. no row: [ErrNoActiveChallenge]
//  2. expired: [ErrChallengeExpired], no attempt charged
//  3. attempts at ceiling: [ErrAttemptsExceeded], no attempt charged
//  4. charge one attempt, then validate the code
//  5. rejected: persist provider status, [ErrInvalidCode]
//  6. accepted: mark verified with a timestamp
//
// Failures from steps 4 and 5 are returned as [*AttemptError]. The caller
// must commit the transaction before reporting them, so the charged attempt
// survives.
//
// Email challenges never reach a provider for validation: the code is
// generated here, its digest stored in ProviderMeta, and compared in
// constant time.
package challenge
