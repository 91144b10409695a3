// Package store provides durable and in-process model storage for the
// engine, plus an append-only log of invocation reports.
//
// Both Store (SQLite) and Memory implement ModelStore, which is the model
// source the subscription index rebuilds from. Writers notify OnChange
// listeners after every committed change so the engine can invalidate its
// index.
//
// # Ordering
//
// Reports are ordered by seq, the engine's logical clock, then by
// invocation id. Queries MUST include: ORDER BY seq ASC, invocation_id
// COLLATE BINARY ASC. Wall time never orders anything.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
