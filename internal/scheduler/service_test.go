package scheduler

import (
	"context"
	"strings"
	"testing"

	"refreshd/internal/job"
	logx "refreshd/pkg/logx"
)

func newTestService(sink Sink) *Service {
	return New(Config{Enabled: true, Timezone: "UTC"}, logx.Nop(), sink)
}

func TestRegisterValidatesSchedule(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)

	if err := s.Register(job.Spec{Name: "ok", Schedule: "0 3 * * *"}); err != nil {
		t.Fatalf("Register valid cron: %v", err)
	}
	if err := s.Register(job.Spec{Name: "ival", Schedule: "55m"}); err != nil {
		t.Fatalf("Register interval: %v", err)
	}

	// Malformed schedules fail at Register time, before any run exists.
	for _, spec := range []string{"61 * * * *", "* * *", "nonsense", ""} {
		if err := s.Register(job.Spec{Name: "bad-" + spec, Schedule: spec}); err == nil {
			t.Fatalf("Register(%q): expected error", spec)
		}
	}

	if err := s.Register(job.Spec{Name: "ok", Schedule: "@hourly"}); err == nil ||
		!strings.Contains(err.Error(), "already registered") {
		t.Fatalf("duplicate Register = %v, want already-registered error", err)
	}
}

func TestReplaceRejectsInvalidSetAtomically(t *testing.T) {
	t.Parallel()
	s := newTestService(nil)
	if err := s.Register(job.Spec{Name: "keep", Schedule: "@daily"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := s.Replace([]job.Spec{
		{Name: "a", Schedule: "@hourly"},
		{Name: "b", Schedule: "99 99 * * *"},
	})
	if err == nil {
		t.Fatal("Replace with invalid member should fail")
	}
	// Old set survives a rejected Replace.
	snap := s.Snapshot()
	if len(snap.Schedules) != 1 || snap.Schedules[0].Job != "keep" {
		t.Fatalf("snapshot after failed Replace = %+v", snap.Schedules)
	}
}

func TestSnapshotExposesNextAfterStart(t *testing.T) {
	t.Parallel()
	s := newTestService(func(string, job.Cause) {})
	if err := s.Register(job.Spec{Name: "daily", Schedule: "0 3 * * *"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	snap := s.Snapshot()
	if snap.Running {
		t.Fatal("should not be running before Start")
	}
	if !snap.Schedules[0].Next.IsZero() {
		t.Fatal("Next should be zero while stopped")
	}

	ctx := context.Background()
	s.Start(ctx)
	defer s.Stop(ctx)

	snap = s.Snapshot()
	if !snap.Running {
		t.Fatal("should be running after Start")
	}
	if snap.Schedules[0].Next.IsZero() {
		t.Fatal("Next should be set for a started schedule")
	}
}
