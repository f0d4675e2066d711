// Package store keeps a SQLite ledger of conversion runs.
//
// Each run records its settings, the corpus fingerprint, per-project
// counts and the subset every image was written to. The ledger is
// append-only: a run is written once, in a single transaction.
//
// # Ordering
//
// Runs are ordered by seq, a logical counter assigned on write, never by
// wall time. Run ids are UUIDv7 in production, so their embedded
// timestamp is available for display only.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
