// Package store provides record stores for the approval engine.
//
// Two implementations satisfy approval.RecordStore:
//   - Store: SQLite-backed durable storage
//   - Memory: in-process storage for tests and embedding
//
// Both share the same commit contract: every op in AtomicCommit carries the
// version (live) or revision (sandbox) the caller read, and the whole commit
// is rejected with ErrConflict if any of them is stale. Expect 0 means the
// row must not exist yet. At most one open (draft or pending) sandbox may
// exist per live record.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Field values are stored as RFC 8785 canonical JSON so rows are
// byte-stable across writes of equal content.
package store
