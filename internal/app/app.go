// Package app wires the daemon together: config, logging, secret store,
// scheduler, run engine, persistence, notifications, and the admin surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"refreshd/internal/admin"
	"refreshd/internal/config"
	"refreshd/internal/eventbus"
	"refreshd/internal/notify"
	"refreshd/internal/runner"
	"refreshd/internal/scheduler"
	"refreshd/internal/secrets"
	"refreshd/internal/store"
	logx "refreshd/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	sec secrets.Store
	st  store.Store
	rec *store.Recorder

	eng   *runner.Service
	sched *scheduler.Service
	notif *notify.Service
	adm   *admin.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sub    chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	bus := eventbus.New()
	sec := buildSecretStore(cfg.Secrets)

	var st store.Store
	if cfg.Storage != nil {
		scfg, err := mapStoreConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err = store.Open(scfg, logs.Logger().With(logx.String("comp", "store")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			log.Info("run persistence enabled", logx.String("driver", scfg.Driver))
		}
	}
	rec := store.NewRecorder(st, bus, logs.Logger().With(logx.String("comp", "store")))

	rcfg, err := mapRunnerConfig(cfg, filepath.Dir(cfgm.Path()))
	if err != nil {
		return nil, err
	}
	eng := runner.New(rcfg, logs.Logger().With(logx.String("comp", "runner")), bus, sec)

	specs, err := cfg.BuildJobs()
	if err != nil {
		return nil, err
	}
	eng.SetJobs(specs)

	sched := scheduler.New(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	}, logs.Logger().With(logx.String("comp", "scheduler")), eng.Sink())
	for _, spec := range specs {
		if err := sched.Register(spec); err != nil {
			return nil, err
		}
	}

	var notif *notify.Service
	if cfg.Notify != nil && cfg.Notify.Enabled {
		ncfg, err := mapNotifyConfig(cfg.Notify)
		if err != nil {
			return nil, err
		}
		token, err := sec.Resolve(cfg.Notify.TokenSecret)
		if err != nil {
			return nil, fmt.Errorf("notify.token_secret: %w", err)
		}
		sender, err := notify.NewTelegramSender(token)
		if err != nil {
			return nil, fmt.Errorf("notify: %w", err)
		}
		notif = notify.New(ncfg, sender, bus, logs.Logger())
	}

	var adm *admin.Service
	if cfg.Admin != nil && cfg.Admin.Enabled {
		acfg, err := mapAdminConfig(cfg.Admin)
		if err != nil {
			return nil, err
		}
		adm = admin.New(acfg, eng, sched, st, logs.Logger())
	}

	return &App{
		cfgm:  cfgm,
		log:   log,
		logs:  logs,
		bus:   bus,
		sec:   sec,
		st:    st,
		rec:   rec,
		eng:   eng,
		sched: sched,
		notif: notif,
		adm:   adm,
	}, nil
}

// Start brings all services up and begins watching the config file.
func (a *App) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	a.eng.Start(runCtx)
	a.rec.Start()
	if a.notif != nil {
		a.notif.Start()
	}
	if a.sched.Enabled() {
		a.sched.Start(runCtx)
	}
	if a.adm != nil {
		if err := a.adm.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	// Config file watch + transactional reload.
	sub := a.cfgm.Subscribe(8)
	a.sub = sub
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(runCtx, sub)
	}()

	// Under systemd Type=notify this unblocks unit startup; elsewhere it
	// is a no-op.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.log.Info("refreshd started", logx.Int("jobs", len(a.eng.Jobs())))
	return nil
}

// Stop shuts everything down in reverse dependency order, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	// Stop triggering first so no new runs enter the queue.
	a.sched.Stop(ctx)
	if a.adm != nil {
		a.adm.Stop(ctx)
	}
	a.eng.Stop(ctx)
	if a.notif != nil {
		a.notif.Stop()
	}
	a.rec.Stop()

	if a.sub != nil {
		a.cfgm.Unsubscribe(a.sub)
		a.sub = nil
	}
	a.wg.Wait()

	var firstErr error
	if a.st != nil {
		if err := a.st.Close(); err != nil {
			firstErr = err
		}
	}
	a.log.Info("refreshd stopped")
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// reloadLoop applies committed config changes to the live services.
// Parsing and validation already happened in the config manager, so by
// the time a config arrives here it is structurally sound.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						cfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyConfig(cfg)
		}
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	rcfg, err := mapRunnerConfig(cfg, filepath.Dir(a.cfgm.Path()))
	if err != nil {
		a.log.Warn("invalid runner config on reload; keeping previous", logx.Err(err))
	} else {
		a.eng.Apply(rcfg)
	}

	specs, err := cfg.BuildJobs()
	if err != nil {
		a.log.Warn("invalid jobs on reload; keeping previous", logx.Err(err))
		return
	}
	a.eng.SetJobs(specs)
	a.sched.Apply(scheduler.Config{
		Enabled:  cfg.Scheduler.Enabled,
		Timezone: cfg.Scheduler.Timezone,
	})
	if err := a.sched.Replace(specs); err != nil {
		a.log.Warn("schedule replace failed on reload", logx.Err(err))
		return
	}

	// Storage, admin, notify, and the secret source bind sockets or hold
	// handles; a restart picks their changes up.
	a.log.Info("config reloaded", logx.Int("jobs", len(specs)))
}

func buildSecretStore(sc config.SecretsConfig) secrets.Store {
	switch strings.ToLower(strings.TrimSpace(sc.Source)) {
	case "static":
		return secrets.StaticStore(sc.Static)
	default:
		return secrets.NewEnvStore(sc.EnvPrefix)
	}
}
