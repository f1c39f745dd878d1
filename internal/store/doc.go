// Package store is the SQLite trace journal.
//
// Every scenario run appends one row to runs and one row per trace record
// to trace_records. The journal is append-only:
//
//   - Writes are idempotent. A run id that already exists is ignored,
//     records included, so re-recording the same run is harmless.
//   - Ordering uses seq columns (a logical clock), never timestamps.
//     Queries order by seq ASC, id ASC COLLATE BINARY.
//   - Each run keeps the digest of its canonical trace; Verify recomputes
//     it from the stored records.
//
// # Database Configuration
//
//   - WAL mode: readers do not block the writer
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// The schema version lives in PRAGMA user_version. Opening a journal
// written by a newer schema fails instead of guessing.
package store
