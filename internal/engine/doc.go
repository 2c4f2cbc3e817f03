// Package engine implements the recalculation orchestrator.
//
// The engine coordinates field updates, recalculation passes,
// diagnostics, and the audit chain over a single SQLite store.
//
// ARCHITECTURE:
//
// Single-Writer Recalc Loop:
// Queued recalculations are processed by a single goroutine (Run) for
// deterministic behavior. This ensures:
// - Predictable pass ordering
// - Reproducible aggregate outputs for identical inputs
// - Simple reasoning about which update a pass observed
//
// Update Flow:
// 1. ApplyFieldUpdate canonicalizes the key and validates the target
// 2. The value is sealed if PII-shaped, then patched into the store
// 3. A hash-chained audit entry is appended (best-effort)
// 4. The caller enqueues a recalculation for the return
//
// Recalculation Flow:
// 1. Load the return and its full field set, revealing sealed values
// 2. Run the pure calculation engine over the snapshot
// 3. Filter proposed writes: overridden fields are skipped silently,
//    missing fields are never created
// 4. Run the diagnostics pipeline over the post-write values
// 5. Commit field writes and aggregates in one transaction
//
// Ordering uses the per-return sequence counter in the store, never
// wall-clock timestamps. Timestamps on entries are informational.
package engine
