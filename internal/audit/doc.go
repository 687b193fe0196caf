// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, NATS, no-op).
//   - [Dispatcher]: ordered async relay. Under drop-if-full, event types the
//     caller marks as retained still wait for space; drops are counted per type.
//   - [Event]: structured audit record with timestamp, type, user, session, device, IP, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit. That responsibility belongs to the Engine.
//
// A Dispatcher lives as long as the Engine that built it; there is no
// package-level emitter.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import phoneauth or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
