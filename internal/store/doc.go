// Package store provides a SQLite-backed journal of engine sessions.
//
// The journal is append-only and records:
//   - Sessions: one row per engine instance
//   - Topic events: subscribe and unsubscribe, in the order they happened
//   - Batches: one row per non-empty drain, with a content digest
//   - Deliveries: the entries of each batch, by position
//
// # Ordering
//
// All reads are ordered by logical sequence numbers, never by timestamps:
// topic events by (seq), deliveries by (drain_seq, position). Replaying a
// journal therefore yields the same order every time.
//
// # Idempotency
//
// Every insert uses ON CONFLICT DO NOTHING on its natural key, so writing the
// same event twice is harmless.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values are stored as canonical JSON (internal/ir) so that batch digests
// can be recomputed from stored rows.
package store
