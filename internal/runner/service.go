// Package runner executes job runs on a worker pool.
//
// Each run gets a fresh ephemeral working directory, secrets resolved from
// the store at trigger time, a dependency install step, and a per-run
// timeout. Output is captured to a secret-redacted log file. Failures are
// terminal unless the job opts into retries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"refreshd/internal/eventbus"
	"refreshd/internal/job"
	"refreshd/internal/secrets"
	logx "refreshd/pkg/logx"
)

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	secrets secrets.Store

	jobs map[string]*registered

	queue    chan queuedRun
	stopCh   chan struct{}
	runCtx   context.Context
	cancel   context.CancelFunc
	workerWG sync.WaitGroup

	hmu     sync.Mutex
	history []job.Run
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, store secrets.Store) *Service {
	return &Service{
		cfg:     cfg.withDefaults(),
		log:     log,
		bus:     bus,
		secrets: store,
		jobs:    map[string]*registered{},
	}
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Apply swaps engine settings at runtime. Worker count changes take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// SetJobs replaces the registered job set. Running runs finish under their
// old spec; per-job overlap state carries over by name so a reload can't
// double-run a job.
func (s *Service) SetJobs(specs []job.Spec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make(map[string]*registered, len(specs))
	for _, sp := range specs {
		if prev, ok := s.jobs[sp.Name]; ok {
			next[sp.Name] = &registered{spec: sp, state: prev.state}
			continue
		}
		next[sp.Name] = &registered{spec: sp, state: &runState{}}
	}
	s.jobs = next
}

// Jobs returns the registered spec names (for the admin surface).
func (s *Service) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	return names
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.queue = make(chan queuedRun, s.cfg.QueueSize)

	workers := s.cfg.Workers

	// Local captures prevent races if fields are swapped during Stop().
	runCtx := s.runCtx
	stopCh := s.stopCh
	queue := s.queue

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in run worker",
						logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.log.Info("run engine started", logx.Int("workers", workers), logx.Int("jobs", len(s.jobs)))
}

// Stop signals workers and waits (bounded by ctx) for in-flight runs.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh := s.stopCh
	cancel := s.cancel
	queue := s.queue
	s.stopCh = nil
	s.cancel = nil
	s.queue = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("run engine stopped")
	case <-ctx.Done():
		s.log.Warn("run engine stop timed out; runs abandoned")
	}
	s.drainQueue(queue)
}

// drainQueue fails runs still queued at shutdown so their handles resolve
// and per-job overlap state is released.
func (s *Service) drainQueue(queue chan queuedRun) {
	for {
		select {
		case q := <-queue:
			if q.state != nil {
				q.state.release()
			}
			q.run.Status = job.StatusFailed
			q.run.Error = ErrStopped.Error()
			s.log.Warn("queued run abandoned at shutdown",
				logx.String("job", q.run.Job), logx.String("run", q.run.ID))
			s.publish(eventbus.RunFailed, *q.run)
			q.handle.complete(job.Result{Status: job.StatusFailed, Err: ErrStopped})
		default:
			return
		}
	}
}

// Submit enqueues a run of the named job and returns a Handle for awaiting
// completion. Under the default OverlapSkip policy a firing that arrives
// while the previous run is still executing returns ErrOverlapSkip and no
// run is created.
func (s *Service) Submit(name string, cause job.Cause) (*Handle, error) {
	s.mu.Lock()
	reg, ok := s.jobs[name]
	queue := s.queue
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	if queue == nil {
		return nil, ErrStopped
	}

	if reg.spec.Overlap == job.OverlapSkip {
		if !reg.state.tryAcquire() {
			s.log.Debug("firing skipped, previous run still executing",
				logx.String("job", name), logx.String("cause", string(cause)))
			return nil, ErrOverlapSkip
		}
	}

	run := &job.Run{
		ID:     uuid.NewString(),
		Job:    name,
		Cause:  cause,
		Status: job.StatusPending,
	}
	h := NewHandle(run.ID)
	q := queuedRun{run: run, spec: reg.spec, handle: h}
	if reg.spec.Overlap == job.OverlapSkip {
		q.state = reg.state
	}

	select {
	case queue <- q:
		return h, nil
	default:
		if q.state != nil {
			q.state.release()
		}
		s.log.Warn("run queue full; dropping firing",
			logx.String("job", name), logx.Int("queue_cap", cap(queue)))
		return nil, ErrQueueFull
	}
}

// Sink adapts Submit for the scheduler: scheduled firings that are skipped
// or dropped are logged, not errors.
func (s *Service) Sink() func(name string, cause job.Cause) {
	return func(name string, cause job.Cause) {
		_, err := s.Submit(name, cause)
		if err != nil && !errors.Is(err, ErrOverlapSkip) {
			s.log.Warn("scheduled firing not accepted", logx.String("job", name), logx.Err(err))
		}
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan queuedRun) {
	for {
		// Fast-exit check so a closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case q := <-queue:
			s.execRun(ctx, stopCh, q)
		}
	}
}

func (s *Service) execRun(ctx context.Context, stopCh <-chan struct{}, q queuedRun) {
	run := q.run
	run.Started = time.Now()
	run.Status = job.StatusRunning

	if q.state != nil {
		defer q.state.release()
	}

	s.publish(eventbus.RunStarted, *run)

	cfg := s.config()
	timeout := q.spec.Timeout
	if timeout <= 0 {
		timeout = cfg.DefaultTimeout
	}

	maxAttempts := 1 + q.spec.RetryMax
	var err error
	attempts := 0
attemptLoop:
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		// Per-attempt timeout so a timed-out first attempt doesn't poison retries.
		runCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			runCtx, cancel = context.WithTimeout(ctx, timeout)
		}
		err = s.executeOnce(runCtx, q.spec, run)
		if cancel != nil {
			cancel()
		}
		if err == nil || attempt >= maxAttempts || IsNoRetry(err) {
			break
		}

		delay := backoffDelay(cfg, attempt)
		s.log.Debug("run retry scheduled",
			logx.String("job", run.Job), logx.Int("attempt", attempt+1),
			logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			err = ctx.Err()
			break attemptLoop
		case <-stopCh:
			tmr.Stop()
			err = ErrStopped
			break attemptLoop
		case <-tmr.C:
		}
	}

	run.Duration = time.Since(run.Started)
	run.Attempts = attempts

	if err != nil {
		run.Status = job.StatusFailed
		run.Error = err.Error()
		s.log.Warn("run failed",
			logx.String("job", run.Job), logx.String("run", run.ID),
			logx.String("cause", string(run.Cause)), logx.Int("exit_code", run.ExitCode),
			logx.Duration("dur", run.Duration), logx.Int("attempts", attempts), logx.Err(err))
		s.publish(eventbus.RunFailed, *run)
	} else {
		run.Status = job.StatusSucceeded
		s.log.Info("run succeeded",
			logx.String("job", run.Job), logx.String("run", run.ID),
			logx.String("cause", string(run.Cause)), logx.Duration("dur", run.Duration))
		s.publish(eventbus.RunFinished, *run)
	}

	s.record(*run)
	q.handle.complete(job.Result{
		Status:   run.Status,
		ExitCode: run.ExitCode,
		Duration: run.Duration,
		LogPath:  run.LogPath,
		Err:      err,
	})
}

func (s *Service) publish(typ string, snapshot job.Run) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: snapshot})
}

func (s *Service) record(r job.Run) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, r)
	limit := s.config().HistorySize
	if len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// History returns recent terminal runs, oldest first.
func (s *Service) History() []job.Run {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]job.Run, len(s.history))
	copy(out, s.history)
	return out
}

func backoffDelay(cfg Config, retry int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// jitter [1-j, 1+j]
	if j := cfg.RetryJitter; j > 0 {
		r := (randFloat64()*2 - 1) * j
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

var rngMu sync.Mutex

func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rand.Float64()
}
