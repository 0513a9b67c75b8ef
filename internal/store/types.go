package store

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("store disabled")
	ErrNotFound = errors.New("run not found")
)

// Config configures run persistence.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", persistence is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// KeepRuns bounds retained run records per store (oldest pruned first).
	// 0 applies a default of 5000.
	KeepRuns int
}

// RunRecord is the persisted shape of a terminal run.
// Keep it compact and schema-stable.
type RunRecord struct {
	ID       string    `json:"id"`
	Job      string    `json:"job"`
	Cause    string    `json:"cause"`
	Started  time.Time `json:"started"`
	Duration int64     `json:"duration_ms"`
	Status   string    `json:"status"`
	ExitCode int       `json:"exit_code"`
	Error    string    `json:"error,omitempty"`
	LogPath  string    `json:"log_path,omitempty"`
	Attempts int       `json:"attempts"`
}
