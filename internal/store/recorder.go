package store

import (
	"context"
	"sync"
	"time"

	"refreshd/internal/eventbus"
	"refreshd/internal/job"
	logx "refreshd/pkg/logx"
)

// Recorder subscribes to the run event bus and persists terminal runs.
type Recorder struct {
	st  Store
	bus eventbus.Bus
	log logx.Logger

	mu    sync.Mutex
	stop  func()
	done  chan struct{}
	runOn bool
}

// NewRecorder wires a Store to the bus. st may be nil (persistence disabled),
// in which case Start is a no-op.
func NewRecorder(st Store, bus eventbus.Bus, log logx.Logger) *Recorder {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Recorder{st: st, bus: bus, log: log}
}

func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runOn || r.st == nil || r.bus == nil {
		return
	}
	ch, unsub := r.bus.Subscribe(64)
	done := make(chan struct{})
	r.stop = unsub
	r.done = done
	r.runOn = true
	go r.loop(ch, done)
}

func (r *Recorder) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.runOn = false
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	}
}

func (r *Recorder) loop(ch <-chan eventbus.Event, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		switch ev.Type {
		case eventbus.RunFinished, eventbus.RunFailed:
		default:
			continue
		}
		run, ok := ev.Data.(job.Run)
		if !ok {
			continue
		}
		if !run.Status.Terminal() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := r.st.AppendRun(ctx, fromRun(run))
		cancel()
		if err != nil {
			r.log.Warn("run record write failed",
				logx.String("job", run.Job),
				logx.String("run_id", run.ID),
				logx.Err(err))
		}
	}
}

func fromRun(run job.Run) RunRecord {
	return RunRecord{
		ID:       run.ID,
		Job:      run.Job,
		Cause:    string(run.Cause),
		Started:  run.Started,
		Duration: run.Duration.Milliseconds(),
		Status:   string(run.Status),
		ExitCode: run.ExitCode,
		Error:    run.Error,
		LogPath:  run.LogPath,
		Attempts: run.Attempts,
	}
}
