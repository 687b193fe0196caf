// Package store defines the relational records phoneauth persists (users,
// one-time-code challenges, device sessions) and the transactional contract
// every backend implements.
//
// # Design
//
// All reads and writes happen inside [Store.WithinTx]. A transaction either
// commits every mutation made through its [Tx] or none of them. Challenge
// and session selection for mutation goes through the Lock* methods, which
// hold a row lock until the transaction ends.
//
// # Backends
//
//   - internal/store/gormstore: PostgreSQL through gorm, SELECT … FOR UPDATE.
//   - internal/store/memstore: in-process, serializes whole transactions.
//
// # What this package must NOT do
//
//   - Store raw bearer credentials (only their digests).
//   - Physically delete challenges; they are kept for audit and rate history.
package store
