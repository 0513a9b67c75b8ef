package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"refreshd/internal/eventbus"
	"refreshd/internal/job"
	logx "refreshd/pkg/logx"
)

func rec(job string, n int) RunRecord {
	return RunRecord{
		ID:      fmt.Sprintf("%s-%04d", job, n),
		Job:     job,
		Cause:   "scheduled",
		Started: time.Date(2026, 8, 1, 3, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute),
		Status:  "succeeded",
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("driver %q: %v", driver, err)
		}
		if st != nil {
			t.Fatalf("driver %q: expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := st.AppendRun(ctx, rec("stock-data", i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.AppendRun(ctx, rec("fx-rates", 0)); err != nil {
		t.Fatal(err)
	}

	got, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 6 {
		t.Fatalf("got %d records, want 6", len(got))
	}
	// Newest first.
	if got[0].ID != "fx-rates-0000" {
		t.Fatalf("newest = %s", got[0].ID)
	}

	got, err = st.RecentRuns(ctx, "stock-data", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "stock-data-0004" || got[1].ID != "stock-data-0003" {
		t.Fatalf("filtered runs = %+v", got)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.AppendRun(ctx, rec("stock-data", 1)); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	st, err = Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	got, err := st.RecentRuns(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "stock-data-0001" {
		t.Fatalf("records after reopen = %+v", got)
	}
}

func TestFileStoreCompaction(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runs.jsonl")
	st, err := Open(Config{Driver: "file", Path: path, KeepRuns: 3}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := st.AppendRun(ctx, rec("stock-data", i)); err != nil {
			t.Fatal(err)
		}
	}

	all, err := readRecords(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) > 6 {
		t.Fatalf("file holds %d records, compaction should bound it near KeepRuns", len(all))
	}
	got, err := st.RecentRuns(ctx, "", 100)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].ID != "stock-data-0009" {
		t.Fatalf("newest after compaction = %s", got[0].ID)
	}
}

type captureStore struct {
	ch chan RunRecord
}

func (c *captureStore) AppendRun(_ context.Context, r RunRecord) error {
	c.ch <- r
	return nil
}

func (c *captureStore) RecentRuns(context.Context, string, int) ([]RunRecord, error) {
	return nil, nil
}

func (c *captureStore) Close() error { return nil }

func TestRecorderPersistsTerminalRuns(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	sink := &captureStore{ch: make(chan RunRecord, 8)}
	r := NewRecorder(sink, bus, logx.Nop())
	r.Start()
	defer r.Stop()

	started := job.Run{ID: "r1", Job: "stock-data", Status: job.StatusRunning}
	bus.Publish(eventbus.Event{Type: eventbus.RunStarted, Data: started})

	done := job.Run{
		ID:       "r1",
		Job:      "stock-data",
		Cause:    job.CauseScheduled,
		Started:  time.Now(),
		Duration: 2 * time.Second,
		Status:   job.StatusSucceeded,
		Attempts: 1,
	}
	bus.Publish(eventbus.Event{Type: eventbus.RunFinished, Data: done})

	select {
	case got := <-sink.ch:
		if got.ID != "r1" || got.Status != "succeeded" || got.Duration != 2000 {
			t.Fatalf("record = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recorder never persisted the finished run")
	}

	// RunStarted must not have been persisted.
	select {
	case got := <-sink.ch:
		t.Fatalf("unexpected extra record: %+v", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRecorderNilStoreIsNoop(t *testing.T) {
	t.Parallel()
	r := NewRecorder(nil, eventbus.New(), logx.Nop())
	r.Start()
	r.Stop()
}
