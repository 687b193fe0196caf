// Package sessions mints, stores, rotates, and revokes per-device sessions.
//
// # Credentials
//
// Each session holds one access token and one refresh token, both signed
// JWTs from package jwt with independent random jti values. Only their hex
// SHA-256 digests are persisted.
//
// # Invariants
//
//   - (user id, device id) is unique: Issue deletes any existing row for the
//     pair before inserting, inside the caller's transaction.
//   - Refresh rotates both credentials on every call. The presented refresh
//     token stops working immediately; presenting it again is reported as
//     [ErrRefreshReuse].
//   - Revoke deactivates rows, never deletes them, and always scopes the
//     update to the calling user.
//
// Every method runs inside a store.Tx supplied by the caller; this package
// never opens or commits transactions.
package sessions
