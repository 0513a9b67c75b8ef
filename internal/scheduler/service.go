package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"refreshd/internal/job"
	logx "refreshd/pkg/logx"
)

// Config controls the trigger service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "UTC"
}

// Sink receives firings. It must not block: the run engine enqueues and
// returns immediately.
type Sink func(jobName string, cause job.Cause)

type entry struct {
	name    string
	raw     string
	spec    string // normalized cron spec handed to robfig/cron
	entryID cron.EntryID
}

// Service owns the cron instance. Entries are registered while stopped and
// (re)applied on Start; a timezone change on Apply restarts the cron with
// the new location.
type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	sink Sink

	parser  cron.Parser
	c       *cron.Cron
	entries []entry
}

func New(cfg Config, log logx.Logger, sink Sink) *Service {
	return &Service{
		cfg:  cfg,
		log:  log,
		sink: sink,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Register validates and stores a job's schedule. A malformed schedule is
// rejected here, before any run is created. Safe to call before Start.
func (s *Service) Register(spec job.Spec) error {
	parsed, err := ParseSchedule(spec.Schedule)
	if err != nil {
		return fmt.Errorf("job %q: %w", spec.Name, err)
	}

	cronSpec := parsed.Cron
	if parsed.Kind == SpecInterval {
		cronSpec = "@every " + parsed.Every.String()
	}
	// Validate syntax eagerly so Register fails for e.g. "61 * * * *".
	if _, err := s.parser.Parse(cronSpec); err != nil {
		return fmt.Errorf("job %q: invalid schedule %q: %w", spec.Name, spec.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].name == spec.Name {
			return fmt.Errorf("job %q: already registered", spec.Name)
		}
	}
	e := entry{name: spec.Name, raw: spec.Schedule, spec: cronSpec}
	if s.c != nil {
		if err := s.addLocked(&e); err != nil {
			return err
		}
	}
	s.entries = append(s.entries, e)
	return nil
}

// Replace swaps the whole entry set (config reload). If running, the cron
// is rebuilt so removed jobs stop firing immediately.
func (s *Service) Replace(specs []job.Spec) error {
	entries := make([]entry, 0, len(specs))
	for _, sp := range specs {
		parsed, err := ParseSchedule(sp.Schedule)
		if err != nil {
			return fmt.Errorf("job %q: %w", sp.Name, err)
		}
		cronSpec := parsed.Cron
		if parsed.Kind == SpecInterval {
			cronSpec = "@every " + parsed.Every.String()
		}
		if _, err := s.parser.Parse(cronSpec); err != nil {
			return fmt.Errorf("job %q: invalid schedule %q: %w", sp.Name, sp.Schedule, err)
		}
		entries = append(entries, entry{name: sp.Name, raw: sp.Schedule, spec: cronSpec})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	if s.c != nil {
		s.restartLocked()
	}
	return nil
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		// restart cron with new location and re-register entries
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.entries {
		if err := s.addLocked(&s.entries[i]); err != nil {
			// Register validated syntax already; this is unreachable in practice.
			s.log.Error("cron add failed", logx.String("job", s.entries[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler started",
		logx.Int("schedules", len(s.entries)), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) addLocked(e *entry) error {
	name := e.name
	id, err := s.c.AddFunc(e.spec, func() {
		s.fire(name)
	})
	if err != nil {
		return err
	}
	e.entryID = id
	return nil
}

func (s *Service) fire(name string) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	sink(name, job.CauseScheduled)
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.entries {
		_ = s.addLocked(&s.entries[i])
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
