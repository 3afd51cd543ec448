// Package store persists showclock sessions and their clock settings in
// SQLite.
//
// A session row records what the owning session configures (name, frame
// bound). The clock settings document is stored verbatim next to it so
// that documents written by newer versions round-trip through older ones.
// Frame position and play state are never stored.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
