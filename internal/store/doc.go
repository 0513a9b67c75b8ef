// Package store persists finished job runs.
//
// It currently supports:
//   - "file": dependency-free append-only JSON Lines
//   - "sqlite": a SQLite database file
//
// Retention is bounded by KeepRuns; pruning is piggybacked on writes.
package store
