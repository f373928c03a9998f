// Package store provides durable storage for OTRI atoms.
//
// Two logical relations are kept:
//   - raw_atoms: append-only atoms, tagged raw or metadata by the kind column
//   - metadata:  one canonical record per ticker (UNIQUE index on the ticker
//     nested inside the JSON value)
//
// A third table, runs, records dedup and aggregation runs for operators.
//
// # Value Encoding
//
// Values are stored as RFC 8785 canonical JSON TEXT (internal/atom), so two
// rows hold the same text exactly when their values are structurally equal.
// raw_atoms also stores the SHA-256 fingerprint of that text.
//
// # Transactions
//
// Every mutation is a single transaction. WithRawLock opens an exclusive
// transaction over raw_atoms for the dedup procedure:
//   - SQLite: single connection, BEGIN IMMEDIATE (_txlock=immediate)
//   - PostgreSQL: SERIALIZABLE plus LOCK TABLE ... SHARE ROW EXCLUSIVE
//
// # Errors
//
// Driver failures surface as *StorageError. Canonical upserts that lose a
// race surface as *ConflictError and should be retried by the caller.
package store
