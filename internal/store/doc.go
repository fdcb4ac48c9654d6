// Package store persists materialized artifacts, one per canonical subset key.
//
// Three backends implement Store:
//   - SQLiteStore: artifacts and run history in one database (default)
//   - DirStore: one Parquet file per key in a directory
//   - ObjectStore: one Parquet object per key in an S3/MinIO bucket
//
// # Guarantees
//
// Put is all-or-nothing. SQLiteStore replaces header and rows in one
// transaction; DirStore writes a temporary file and renames it; ObjectStore
// issues a single PutObject. A Put that fails or is cancelled before commit
// returns a PARTIAL_WRITE error and the previous artifact stays visible.
//
// Get recomputes the content hash of what it read and fails on mismatch.
// A key that was never written is a NOT_FOUND error, never an empty
// artifact.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Values and measure sums are stored as RFC 8785 canonical JSON produced by
// internal/cube, so stored bytes are deterministic.
package store
