package config

import (
	"fmt"
	"strings"
	"time"

	"refreshd/internal/job"
)

// Validate performs structural validation: anything that can be rejected
// without touching the filesystem or the scheduler. Schedule *syntax* is
// additionally validated by the scheduler at registration, before any run.
func (c *Config) Validate() error {
	if len(c.Jobs) == 0 {
		return fmt.Errorf("jobs: at least one job is required")
	}

	seen := make(map[string]struct{}, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		where := fmt.Sprintf("jobs[%d]", i)
		name := strings.TrimSpace(j.Name)
		if name == "" {
			return fmt.Errorf("%s: name is required", where)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%s: duplicate job name %q", where, name)
		}
		seen[name] = struct{}{}

		if strings.TrimSpace(j.Schedule) == "" {
			return fmt.Errorf("%s (%s): schedule is required", where, name)
		}
		if len(j.Command) == 0 || strings.TrimSpace(j.Command[0]) == "" {
			return fmt.Errorf("%s (%s): command is required", where, name)
		}
		switch strings.ToLower(strings.TrimSpace(j.Overlap)) {
		case "", "skip", "allow":
		default:
			return fmt.Errorf("%s (%s): overlap must be \"skip\" or \"allow\", got %q", where, name, j.Overlap)
		}
		if j.RetryMax < 0 {
			return fmt.Errorf("%s (%s): retry_max must be >= 0", where, name)
		}
		if _, err := ParseDurationField(where+".timeout", j.Timeout); err != nil {
			return err
		}
		for _, s := range j.Secrets {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("%s (%s): empty secret name", where, name)
			}
		}
		if j.Manifest != nil && j.Manifest.File != "" && len(j.Manifest.Command) == 0 {
			return fmt.Errorf("%s (%s): manifest.file without manifest.command", where, name)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Secrets.Source)) {
	case "", "env", "static":
	default:
		return fmt.Errorf("secrets.source must be \"env\" or \"static\", got %q", c.Secrets.Source)
	}

	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(strings.TrimSpace(c.Scheduler.Timezone)); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}

	if _, err := ParseDurationField("runner.default_timeout", c.Runner.DefaultTimeout); err != nil {
		return err
	}

	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}

	if c.Notify != nil && c.Notify.Enabled {
		if strings.TrimSpace(c.Notify.TokenSecret) == "" {
			return fmt.Errorf("notify.token_secret is required when notify is enabled")
		}
		if c.Notify.ChatID == 0 {
			return fmt.Errorf("notify.chat_id is required when notify is enabled")
		}
		if _, err := ParseDurationField("notify.dedup_window", c.Notify.DedupWindow); err != nil {
			return err
		}
	}

	if c.Admin != nil {
		for _, f := range []struct{ k, v string }{
			{"admin.read_timeout", c.Admin.ReadTimeout},
			{"admin.write_timeout", c.Admin.WriteTimeout},
			{"admin.idle_timeout", c.Admin.IdleTimeout},
		} {
			if _, err := ParseDurationField(f.k, f.v); err != nil {
				return err
			}
		}
	}

	return nil
}

// BuildJobs converts the validated job section into immutable specs.
// baseDir is the config file's directory; relative manifest files and
// commands are resolved against it at run time.
func (c *Config) BuildJobs() ([]job.Spec, error) {
	specs := make([]job.Spec, 0, len(c.Jobs))
	for i := range c.Jobs {
		jc := &c.Jobs[i]

		timeout, err := ParseDurationField(fmt.Sprintf("jobs[%d].timeout", i), jc.Timeout)
		if err != nil {
			return nil, err
		}

		overlap := job.OverlapSkip
		if strings.EqualFold(strings.TrimSpace(jc.Overlap), "allow") {
			overlap = job.OverlapAllow
		}

		spec := job.Spec{
			Name:        strings.TrimSpace(jc.Name),
			Schedule:    strings.TrimSpace(jc.Schedule),
			Command:     append([]string(nil), jc.Command...),
			Secrets:     append([]string(nil), jc.Secrets...),
			Timeout:     timeout,
			Overlap:     overlap,
			RetryMax:    jc.RetryMax,
			KeepWorkdir: jc.KeepWorkdir,
		}
		if len(jc.Env) > 0 {
			spec.Env = make(map[string]string, len(jc.Env))
			for k, v := range jc.Env {
				spec.Env[k] = v
			}
		}
		if jc.Manifest != nil {
			spec.Manifest = job.Manifest{
				File:    strings.TrimSpace(jc.Manifest.File),
				Command: append([]string(nil), jc.Manifest.Command...),
			}
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
