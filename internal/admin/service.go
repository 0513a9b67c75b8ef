// Package admin exposes a small operational HTTP surface: liveness,
// schedule status, run history, and manual triggering.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"refreshd/internal/job"
	"refreshd/internal/runner"
	"refreshd/internal/scheduler"
	"refreshd/internal/store"
	logx "refreshd/pkg/logx"
)

type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool

	// TriggerPerMin bounds manual trigger requests. 0 applies a default of 6.
	TriggerPerMin int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Engine is the runner surface the admin server drives.
type Engine interface {
	Submit(name string, cause job.Cause) (*runner.Handle, error)
	History() []job.Run
	Jobs() []string
}

// Schedules is the scheduler surface exposed read-only.
type Schedules interface {
	Snapshot() scheduler.Snapshot
}

type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config

	eng   Engine
	sched Schedules
	runs  store.Store // may be nil (persistence disabled)

	limiter *rate.Limiter

	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, eng Engine, sched Schedules, runs store.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	per := cfg.TriggerPerMin
	if per <= 0 {
		per = 6
	}
	return &Service{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "admin")),
		eng:     eng,
		sched:   sched,
		runs:    runs,
		limiter: rate.NewLimiter(rate.Limit(float64(per)/60.0), per),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Addr returns the bound listen address ("" while stopped). Useful when
// the config asked for port 0.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener and begins serving. Idempotent; returns an
// error on refused insecure binds or a busy port.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.mu.Lock()
	}
	if s.srv != nil {
		s.mu.Unlock()
		return nil
	}
	cur := s.cfg
	s.mu.Unlock()

	if !cur.Enabled {
		return nil
	}

	addr := strings.TrimSpace(cur.Addr)
	if addr == "" {
		addr = "127.0.0.1:8090"
	}

	// Safety: prevent accidental public exposure without auth.
	if !cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Error("admin refused to start: non-loopback addr requires token or allow_insecure",
			logx.String("addr", addr))
		return errors.New("admin refused to start: insecure bind")
	}
	if cur.AllowInsecure && cur.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("admin running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("admin listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}

	srv := &http.Server{
		Handler:      s.handler(cur.Token),
		ReadTimeout:  cur.ReadTimeout,
		WriteTimeout: cur.WriteTimeout,
		IdleTimeout:  cur.IdleTimeout,
	}

	s.mu.Lock()
	s.ln = ln
	s.srv = srv
	s.mu.Unlock()

	go func() {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server exited", logx.Err(err))
		}
	}()

	s.log.Info("admin started",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", cur.Token != ""))
	return nil
}

// Stop gracefully shuts the server down, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	ln := s.ln
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		if ln != nil {
			_ = ln.Close()
		}
		s.mu.Lock()
		s.srv = nil
		s.ln = nil
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("admin stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Service) withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		if ah := r.Header.Get("Authorization"); ah != "" {
			const p = "Bearer "
			if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				h(w, r)
				return
			}
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
