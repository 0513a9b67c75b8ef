package config

import (
	"bytes"
	"encoding/json"
)

// Config is the root of refreshd's configuration file (YAML or JSON).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "45m").
// Unknown keys are rejected so typos surface at load/reload time instead of
// silently disabling features.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Runner    RunnerConfig    `json:"runner"`
	Secrets   SecretsConfig   `json:"secrets"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Admin     *AdminConfig    `json:"admin,omitempty"`
	Notify    *NotifyConfig   `json:"notify,omitempty"`

	Jobs []JobConfig `json:"jobs"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone is the IANA zone cron specs are evaluated in (e.g. "UTC").
	// Empty means the process-local zone.
	Timezone string `json:"timezone,omitempty"`
}

// RunnerConfig controls the run execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 200
//   - log_dir: "./runlogs"
type RunnerConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// DefaultTimeout applies to jobs without an explicit timeout.
	// Use "0s" to disable a global default.
	DefaultTimeout string `json:"default_timeout,omitempty"`

	HistorySize int `json:"history_size,omitempty"`

	// LogDir is where per-run (redacted) log files are written.
	LogDir string `json:"log_dir,omitempty"`
}

// SecretsConfig selects where declared secret names are resolved from.
//
// source values:
//   - "env" (default): the daemon's environment, optionally behind env_prefix
//   - "static": the inline static map (tests / non-sensitive tokens only)
type SecretsConfig struct {
	Source    string            `json:"source,omitempty"`
	EnvPrefix string            `json:"env_prefix,omitempty"`
	Static    map[string]string `json:"static,omitempty"`
}

// StorageConfig controls the optional run-history persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./refreshd.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// AdminConfig controls the optional admin HTTP server (health, run history,
// manual trigger).
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8090").
//   - If you bind to a non-loopback address, set a token or explicitly
//     allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`

	// TriggerPerMin rate-limits POST /trigger. Default 6.
	TriggerPerMin int `json:"trigger_per_min,omitempty"`

	// Server timeouts. Defaults: read 10s, write 30s, idle 1m.
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// NotifyConfig controls run-completion notifications via Telegram.
//
// The bot token is itself a secret: token_secret names an entry in the
// secret store rather than holding the token inline.
type NotifyConfig struct {
	Enabled bool `json:"enabled"`

	TokenSecret string `json:"token_secret"`
	ChatID      int64  `json:"chat_id"`

	// OnSuccess also notifies successful runs. Failures always notify.
	OnSuccess bool `json:"on_success,omitempty"`

	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
}

// JobConfig is one refresh job as written in the config file.
type JobConfig struct {
	Name     string   `json:"name"`
	Schedule string   `json:"schedule"`
	Command  []string `json:"command"`

	Secrets []string          `json:"secrets,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	Manifest *ManifestConfig `json:"manifest,omitempty"`

	Timeout string `json:"timeout,omitempty"`

	// Overlap: "skip" (default) drops a firing while the previous run of
	// this job is still executing; "allow" lets runs overlap.
	Overlap string `json:"overlap,omitempty"`

	// RetryMax re-executions after a failure. Default 0 (no automatic retry).
	RetryMax int `json:"retry_max,omitempty"`

	KeepWorkdir bool `json:"keep_workdir,omitempty"`
}

type ManifestConfig struct {
	File    string   `json:"file,omitempty"`
	Command []string `json:"command,omitempty"`
}

// UnmarshalJSON disallows unknown fields so renamed or removed keys are
// caught during config reload instead of being ignored.
func (j *JobConfig) UnmarshalJSON(b []byte) error {
	type raw JobConfig
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var r raw
	if err := dec.Decode(&r); err != nil {
		return err
	}
	*j = JobConfig(r)
	return nil
}
