// Package store provides SQLite-backed storage for boards and the curves
// captured while walking their test plans.
//
// Boards are kept as canonical universal documents, so a stored board is
// byte-identical to the file the ufiv package would write. Captures are
// append-only and grouped into sessions.
//
// # Ordering
//
// Captures are ordered by a per-session seq counter, never by wall time.
// Every list query ends in ORDER BY seq ASC, id ASC so results are
// identical across runs.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
