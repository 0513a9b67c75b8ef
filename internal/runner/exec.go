package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"refreshd/internal/job"
	"refreshd/internal/secrets"
	logx "refreshd/pkg/logx"
)

// Environment variables passed through from the daemon to child processes.
// Everything else the child sees is declared in the job spec or resolved
// from the secret store; runs must not inherit ambient credentials.
var passEnv = []string{"PATH", "HOME", "LANG", "LC_ALL", "TZ"}

// executeOnce runs one attempt of a job: provision workdir, resolve secrets,
// install dependencies, execute the entry point. It mutates run (exit code,
// log path) and returns nil only for a clean zero exit.
func (s *Service) executeOnce(ctx context.Context, spec job.Spec, run *job.Run) error {
	cfg := s.config()

	// Secrets first: a missing secret aborts before any file or process
	// exists for this run.
	vals, err := secrets.ResolveAll(s.secrets, spec.Secrets)
	if err != nil {
		run.ExitCode = -1
		return NoRetry(fmt.Errorf("resolving secrets for job %q: %w", spec.Name, err))
	}

	logFile, err := s.openRunLog(cfg, run)
	if err != nil {
		run.ExitCode = -1
		return NoRetry(err)
	}
	defer logFile.Close()

	secretValues := make([]string, 0, len(vals))
	for _, v := range vals {
		secretValues = append(secretValues, v)
	}
	sink := newRedactor(logFile, secretValues)
	defer sink.Flush()

	workdir, err := os.MkdirTemp("", "refreshd-"+sanitizeName(spec.Name)+"-")
	if err != nil {
		run.ExitCode = -1
		return fmt.Errorf("provisioning workdir: %w", err)
	}
	if spec.KeepWorkdir {
		s.log.Debug("keeping workdir", logx.String("job", spec.Name), logx.String("dir", workdir))
	} else {
		defer os.RemoveAll(workdir)
	}

	if f := spec.Manifest.File; f != "" {
		if err := copyIntoDir(resolvePath(cfg.BaseDir, f), workdir); err != nil {
			run.ExitCode = -1
			return NoRetry(fmt.Errorf("staging manifest %q: %w", f, err))
		}
	}

	baseEnv := childEnv(spec, nil)

	if len(spec.Manifest.Command) > 0 {
		fmt.Fprintf(sink, "+ %s\n", strings.Join(spec.Manifest.Command, " "))
		code, err := s.runCommand(ctx, cfg, spec.Manifest.Command, workdir, baseEnv, sink)
		if err != nil {
			run.ExitCode = -1
			if errors.Is(err, ErrRunTimeout) {
				return err
			}
			return &InstallError{ExitCode: code, Err: err}
		}
		if code != 0 {
			run.ExitCode = -1
			return &InstallError{ExitCode: code, Err: fmt.Errorf("install command exited with code %d", code)}
		}
	}

	// Secrets are exposed only to the entry point process, only for the
	// run's duration.
	runEnv := childEnv(spec, vals)

	fmt.Fprintf(sink, "+ %s\n", strings.Join(spec.Command, " "))
	code, err := s.runCommand(ctx, cfg, spec.Command, workdir, runEnv, sink)
	run.ExitCode = code
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// runCommand executes argv and streams combined output into sink.
// The returned code is the process exit status (-1 if it never ran or was
// killed). A deadline overrun maps to ErrRunTimeout.
func (s *Service) runCommand(ctx context.Context, cfg Config, argv []string, dir string, env []string, sink io.Writer) (int, error) {
	prog := argv[0]
	if !filepath.IsAbs(prog) && strings.ContainsRune(prog, os.PathSeparator) {
		prog = resolvePath(cfg.BaseDir, prog)
	}

	cmd := exec.CommandContext(ctx, prog, argv[1:]...)
	cmd.Dir = dir
	cmd.Env = env
	cmd.Stdout = sink
	cmd.Stderr = sink
	// Bound how long Wait blocks on output pipes after cancellation kills
	// the child (grandchildren may keep the pipes open).
	cmd.WaitDelay = 3 * time.Second

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return -1, fmt.Errorf("%w: %v", ErrRunTimeout, ctx.Err())
	}
	if err == nil {
		return 0, nil
	}

	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// Captured verbatim; the caller decides Failed vs install-abort.
		return ee.ExitCode(), nil
	}
	// Start failure (missing binary, permission): the process never ran.
	return -1, err
}

func (s *Service) openRunLog(cfg Config, run *job.Run) (*os.File, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	name := fmt.Sprintf("%s-%s.log", sanitizeName(run.Job), run.ID)
	path := filepath.Join(cfg.LogDir, name)
	// Append so retry attempts of the same run share one log.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}
	run.LogPath = path
	return f, nil
}

// childEnv builds the process environment: passthrough base + job env +
// resolved secrets. Later entries win on key collisions.
func childEnv(spec job.Spec, secretVals map[string]string) []string {
	env := make([]string, 0, len(passEnv)+len(spec.Env)+len(secretVals))
	for _, k := range passEnv {
		if v, ok := os.LookupEnv(k); ok {
			env = append(env, k+"="+v)
		}
	}
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	for k, v := range secretVals {
		env = append(env, k+"="+v)
	}
	return env
}

func resolvePath(baseDir, p string) string {
	if filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

func copyIntoDir(src, dir string) error {
	b, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, filepath.Base(src)), b, 0o644)
}

var nameSanitizer = strings.NewReplacer("/", "_", "\\", "_", " ", "_", ":", "_")

func sanitizeName(name string) string { return nameSanitizer.Replace(name) }
