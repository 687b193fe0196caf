// Package provider defines the contracts phoneauth consumes from external
// verification services and the [Adapter] that calls them uniformly.
//
// # Contracts
//
//   - [SMSProvider] originates and validates one-time codes sent by SMS.
//   - [EmailSender] delivers locally generated codes by email.
//   - [IdentityVerifier] checks third-party identity assertions.
//
// # Error taxonomy
//
// Implementations report a refusal by the provider (bad number, unknown
// verification, invalid assertion) as a [*RejectionError] or
// [ErrInvalidAssertion]. Anything else (transport, 5xx, timeouts) is treated
// as [ErrUnavailable] by the adapter and is retried according to its policy.
//
// Sub-packages hold concrete implementations: twilio, natsmail, oidc, local.
package provider
