// Package job defines the shared data model for refresh jobs and their runs.
//
// A Spec is immutable configuration loaded at startup (or on config reload);
// a Run is one execution instance produced by a scheduled firing or a manual
// trigger. Runs move Pending -> Running -> (Succeeded | Failed) and are
// terminal on either outcome.
package job

import (
	"time"
)

// Cause records what fired a run.
type Cause string

const (
	CauseScheduled Cause = "scheduled"
	CauseManual    Cause = "manual"
)

// Status is the run lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool { return s == StatusSucceeded || s == StatusFailed }

// OverlapPolicy decides what happens when a firing arrives while the
// previous run of the same job is still executing.
type OverlapPolicy int

const (
	// OverlapSkip drops the new firing. Default: a data-refresh job gains
	// nothing from two concurrent refreshes of the same target.
	OverlapSkip OverlapPolicy = iota
	OverlapAllow
)

// Manifest declares the dependency install step executed in the run's
// working directory before the entry point, e.g.
//
//	{File: "requirements.txt", Command: ["pip", "install", "-r", "requirements.txt"]}
//
// An empty Command skips the install step.
type Manifest struct {
	// File is copied (resolved relative to the config file's directory)
	// into the ephemeral workdir before Command runs. Optional.
	File string
	// Command is the install argv, executed in the workdir.
	Command []string
}

// Spec is one configured refresh job. Immutable once built; config reload
// replaces the whole set.
type Spec struct {
	// Name is the stable, human-readable job identifier (e.g. "stock-data").
	Name string

	// Schedule is a cron expression ("0 3 * * *", "@daily") or an interval
	// ("55m", "02:30"). Parsed and validated before any run.
	Schedule string

	// Command is the entry point argv. The first element may be relative to
	// the config file's directory.
	Command []string

	// Secrets lists secret names resolved from the secret store at trigger
	// time and exposed to the child process as environment variables.
	// A missing secret fails the run before any process starts.
	Secrets []string

	// Env is extra non-secret environment (KEY=VALUE applied on top of a
	// minimal base environment).
	Env map[string]string

	Manifest Manifest

	// Timeout bounds the entry point's execution. 0 means no bound beyond
	// the engine default.
	Timeout time.Duration

	Overlap OverlapPolicy

	// RetryMax is the number of automatic re-executions after a failure.
	// Default 0: failures are terminal, matching a runner with no retry
	// configured.
	RetryMax int

	// KeepWorkdir leaves the ephemeral working directory in place after the
	// run (debugging aid). Default false: the workdir is removed.
	KeepWorkdir bool
}

// Run is one execution instance of a Spec.
type Run struct {
	ID    string
	Job   string
	Cause Cause

	Started  time.Time
	Duration time.Duration

	Status   Status
	ExitCode int
	Error    string

	// LogPath points at the captured (secret-redacted) output of this run.
	LogPath string

	Attempts int
}

// Result is the terminal summary returned to await_completion callers.
type Result struct {
	Status   Status
	ExitCode int
	Duration time.Duration
	LogPath  string
	Err      error
}
