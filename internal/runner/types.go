package runner

import (
	"sync"
	"time"

	"refreshd/internal/job"
)

// Config controls the run execution engine.
//
// The scheduler is trigger-only; everything about *how* a run executes
// (workers, timeouts, history, log capture) belongs here.
type Config struct {
	Workers   int
	QueueSize int

	// DefaultTimeout is used when a job's Spec.Timeout is 0.
	// 0 disables the engine-wide default bound.
	DefaultTimeout time.Duration

	HistorySize int

	// LogDir is where per-run (redacted) log files are written.
	LogDir string

	// BaseDir anchors relative manifest files and commands (normally the
	// config file's directory).
	BaseDir string

	// Retry pacing for jobs that opt into RetryMax > 0.
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	RetryJitter   float64 // 0.2 = 20%
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 200
	}
	if c.LogDir == "" {
		c.LogDir = "./runlogs"
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	return c
}

// runState is shared between firings of the same job for overlap control.
type runState struct {
	mu      sync.Mutex
	running bool
}

// tryAcquire marks the job running under OverlapSkip semantics.
func (st *runState) tryAcquire() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.running {
		return false
	}
	st.running = true
	return true
}

func (st *runState) release() {
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
}

type registered struct {
	spec  job.Spec
	state *runState
}

type queuedRun struct {
	run    *job.Run // shared with the Handle; engine owns mutation
	spec   job.Spec
	state  *runState
	handle *Handle
}

// Handle lets a caller await one run's completion.
type Handle struct {
	id   string
	done chan struct{}

	mu     sync.Mutex
	result job.Result
}

// NewHandle builds an unresolved handle. The engine (and test fakes)
// complete it when the run terminates.
func NewHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) ID() string { return h.id }

// Done is closed when the run reaches a terminal status.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the terminal result. Valid only after Done() is closed.
func (h *Handle) Result() job.Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *Handle) complete(res job.Result) {
	h.mu.Lock()
	h.result = res
	h.mu.Unlock()
	close(h.done)
}
