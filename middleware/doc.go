// Package middleware exposes net/http adapters that gate handlers on a
// phoneauth session.
//
// # Guards
//
//   - [RequireSession] resolves the bearer access token through
//     Engine.CurrentSession and attaches the session to the request context.
//   - [RequireRole] admits only sessions carrying one of the listed roles.
//
// Handlers read the session with [SessionFromContext] and pass
// info.Principal() to session-scoped engine operations.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Make decisions beyond pass/reject on the resolved session.
package middleware
