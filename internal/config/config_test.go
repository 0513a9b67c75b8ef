package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"refreshd/internal/job"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const validYAML = `
logging:
  level: info
  console: true
scheduler:
  enabled: true
  timezone: UTC
runner:
  workers: 2
  default_timeout: "45m"
  log_dir: ./runlogs
secrets:
  source: env
storage:
  driver: file
  path: ./runs
jobs:
  - name: stock-data
    schedule: "0 3 * * *"
    command: ["python3", "main.py"]
    secrets: [TOKEN]
    manifest:
      file: requirements.txt
      command: ["pip", "install", "-r", "requirements.txt"]
    timeout: "30m"
`

func TestLoadValidYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML)

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get() should return the committed config")
	}
	if cfg.Scheduler.Timezone != "UTC" {
		t.Fatalf("timezone = %q, want UTC", cfg.Scheduler.Timezone)
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].Name != "stock-data" {
		t.Fatalf("unexpected jobs: %+v", cfg.Jobs)
	}

	specs, err := cfg.BuildJobs()
	if err != nil {
		t.Fatalf("BuildJobs error: %v", err)
	}
	s := specs[0]
	if s.Timeout != 30*time.Minute {
		t.Fatalf("timeout = %v, want 30m", s.Timeout)
	}
	if s.Overlap != job.OverlapSkip {
		t.Fatalf("overlap = %v, want skip default", s.Overlap)
	}
	if len(s.Secrets) != 1 || s.Secrets[0] != "TOKEN" {
		t.Fatalf("secrets = %v", s.Secrets)
	}
	if s.Manifest.File != "requirements.txt" || len(s.Manifest.Command) != 4 {
		t.Fatalf("manifest = %+v", s.Manifest)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", validYAML+"\nnot_a_key: true\n")
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestValidateFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no jobs", func(c *Config) { c.Jobs = nil }, "at least one job"},
		{"empty name", func(c *Config) { c.Jobs[0].Name = " " }, "name is required"},
		{"duplicate name", func(c *Config) { c.Jobs = append(c.Jobs, c.Jobs[0]) }, "duplicate job name"},
		{"empty schedule", func(c *Config) { c.Jobs[0].Schedule = "" }, "schedule is required"},
		{"empty command", func(c *Config) { c.Jobs[0].Command = nil }, "command is required"},
		{"bad overlap", func(c *Config) { c.Jobs[0].Overlap = "queue" }, "overlap"},
		{"negative retry", func(c *Config) { c.Jobs[0].RetryMax = -1 }, "retry_max"},
		{"bad timeout", func(c *Config) { c.Jobs[0].Timeout = "later" }, "invalid duration"},
		{"bad timezone", func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, "timezone"},
		{"bad secrets source", func(c *Config) { c.Secrets.Source = "vault" }, "secrets.source"},
		{"manifest file without command", func(c *Config) {
			c.Jobs[0].Manifest = &ManifestConfig{File: "requirements.txt"}
		}, "manifest.file without manifest.command"},
		{"notify missing token", func(c *Config) {
			c.Notify = &NotifyConfig{Enabled: true, ChatID: 1}
		}, "token_secret"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := writeConfig(t, "config.yaml", validYAML)
			cfg, err := m.Load()
			if err != nil {
				t.Fatalf("Load error: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json",
		`{"scheduler":{"enabled":true},"jobs":[{"name":"a","schedule":"@daily","command":["true"]}]} {}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}
