package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "refreshd/pkg/logx"
)

// fileStore is the dependency-free persistence backend.
//
// Runs are appended as JSON Lines to <prefix>.runs.jsonl. When the file
// grows past ~2x KeepRuns records it is compacted in place to the newest
// KeepRuns.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	path string
	f    *os.File

	keep  int
	count int // records in file, maintained across appends
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store.path is required for file driver")
	}
	if ext := filepath.Ext(path); ext != ".jsonl" {
		path += ".runs.jsonl"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	count, err := countLines(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{log: log, path: path, f: f, keep: cfg.KeepRuns, count: count}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return errors.New("run file closed")
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.count++
	if s.count > 2*s.keep {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("run file compaction failed", logx.Err(err), logx.String("path", s.path))
		}
	}
	return nil
}

func (s *fileStore) RecentRuns(ctx context.Context, jobName string, limit int) ([]RunRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}

	all, err := readRecords(s.path)
	if err != nil {
		return nil, err
	}

	// Newest last on disk; return newest first.
	out := make([]RunRecord, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		if jobName != "" && all[i].Job != jobName {
			continue
		}
		out = append(out, all[i])
	}
	return out, nil
}

// compactLocked rewrites the file keeping only the newest keep records.
// The write goes through a temp file + rename so a crash mid-compaction
// never loses the original.
func (s *fileStore) compactLocked() error {
	all, err := readRecords(s.path)
	if err != nil {
		return err
	}
	if len(all) > s.keep {
		all = all[len(all)-s.keep:]
	}

	tmp := s.path + ".tmp"
	tf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tf)
	for i := range all {
		if err := enc.Encode(all[i]); err != nil {
			_ = tf.Close()
			return err
		}
	}
	if err := tf.Close(); err != nil {
		return err
	}

	if err := s.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = f
	s.count = len(all)
	return nil
}

func readRecords(path string) ([]RunRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r RunRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Torn tail write (crash mid-append): skip, keep the rest.
			continue
		}
		out = append(out, r)
	}
	return out, sc.Err()
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}
