// Package notify announces run outcomes to a Telegram chat.
//
// Failed runs are always announced; successes are opt-in. Delivery is
// asynchronous and best-effort: a slow or unreachable chat never blocks
// the run engine.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"refreshd/internal/eventbus"
	"refreshd/internal/job"
	logx "refreshd/pkg/logx"
)

type Service struct {
	cfg     Config
	log     logx.Logger
	bus     eventbus.Bus
	sender  Sender
	limiter *rate.Limiter

	mu      sync.Mutex
	unsub   func()
	done    chan struct{}
	cancel  context.CancelFunc
	running bool

	// dedup: job+status -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, sender Sender, bus eventbus.Bus, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "notify")),
		bus:     bus,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		dedup:   map[string]time.Time{},
	}
}

// Start begins consuming run events. Idempotent; no-op when disabled or
// no sender is configured.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.cfg.Enabled || s.sender == nil || s.bus == nil {
		return
	}
	ch, unsub := s.bus.Subscribe(s.cfg.QueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.unsub = unsub
	s.cancel = cancel
	s.done = done
	s.running = true
	go s.loop(ctx, ch, done)
}

// Stop halts event intake and waits briefly for the in-flight send.
func (s *Service) Stop() {
	s.mu.Lock()
	unsub, cancel, done := s.unsub, s.cancel, s.done
	s.unsub, s.cancel, s.done = nil, nil, nil
	s.running = false
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
	}
}

func (s *Service) loop(ctx context.Context, ch <-chan eventbus.Event, done chan struct{}) {
	defer close(done)
	for ev := range ch {
		run, ok := ev.Data.(job.Run)
		if !ok {
			continue
		}
		switch ev.Type {
		case eventbus.RunFailed:
		case eventbus.RunFinished:
			if !s.cfg.OnSuccess || run.Status != job.StatusSucceeded {
				continue
			}
		default:
			continue
		}
		if !s.allow(run) {
			continue
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := s.sender.Send(ctx, s.cfg.ChatID, formatRun(run)); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("notification send failed",
				logx.String("job", run.Job),
				logx.String("run_id", run.ID),
				logx.Err(err))
		}
	}
}

// allow applies the dedup window to a job+outcome pair.
func (s *Service) allow(run job.Run) bool {
	if s.cfg.DedupWindow <= 0 {
		return true
	}
	key := run.Job + "|" + string(run.Status)
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	// Opportunistic sweep keeps the map bounded.
	for k, until := range s.dedup {
		if now.After(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(s.cfg.DedupWindow)
	return true
}

func formatRun(run job.Run) string {
	switch run.Status {
	case job.StatusSucceeded:
		return fmt.Sprintf("✅ %s refreshed in %s (run %s)",
			run.Job, run.Duration.Round(time.Second), run.ID)
	default:
		msg := fmt.Sprintf("❌ %s failed after %s (run %s, exit %d",
			run.Job, run.Duration.Round(time.Second), run.ID, run.ExitCode)
		if run.Attempts > 1 {
			msg += fmt.Sprintf(", %d attempts", run.Attempts)
		}
		msg += ")"
		if run.Error != "" {
			msg += "\n" + truncate(run.Error, 400)
		}
		return msg
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
