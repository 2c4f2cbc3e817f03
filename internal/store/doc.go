// Package store provides SQLite-backed durable storage for tax
// returns, their fields, and the audit log.
//
// The store persists three tables:
//   - returns: one header per return with lock state and the aggregate
//     outputs of the last recalculation
//   - fields: one row per (return, form, field) with the value and the
//     calculated/overridden/estimated/sensitive flags
//   - audit_entries: the append-only hash-chained mutation record
//
// Field values are stored as canonical JSON so stored bytes are
// directly comparable and hashable. Reads use deterministic ordering
// (COLLATE BINARY) so snapshots and golden output are reproducible.
// ApplyRecalc commits a whole recalculation pass in one transaction.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// The store enforces no domain rules beyond referential integrity:
// override semantics, field creation policy, and audit chaining are
// the engine's responsibility.
package store
