package runner

import (
	"errors"
	"fmt"
)

var (
	ErrStopped     = errors.New("run engine stopped")
	ErrQueueFull   = errors.New("run engine queue full")
	ErrUnknownJob  = errors.New("unknown job")
	ErrOverlapSkip = errors.New("run skipped: previous run still executing")

	// ErrRunTimeout marks a run that exceeded its configured bound. The run
	// is Failed; the entry point was killed by context cancellation.
	ErrRunTimeout = errors.New("run exceeded timeout")
)

// InstallError reports a failed dependency install step. The entry point
// was never started.
type InstallError struct {
	ExitCode int
	Err      error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("dependency install failed (exit %d): %v", e.ExitCode, e.Err)
}
func (e *InstallError) Unwrap() error { return e.Err }

// ExitError reports a non-zero entry point exit. The code is preserved
// verbatim on the run.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("entry point exited with code %d", e.Code) }

// NoRetry marks an error as non-retryable.
//
// The exec pipeline wraps failures that cannot succeed without operator
// intervention (missing secret, missing manifest file) with NoRetry so a
// job with retries configured doesn't re-run them pointlessly.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return noRetryError{err: err}
}

// IsNoRetry reports whether err is wrapped with NoRetry.
func IsNoRetry(err error) bool {
	var e noRetryError
	return errors.As(err, &e)
}

type noRetryError struct{ err error }

func (e noRetryError) Error() string { return fmt.Sprintf("no-retry: %v", e.err) }
func (e noRetryError) Unwrap() error { return e.err }
