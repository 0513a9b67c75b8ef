package app

import (
	"time"

	"refreshd/internal/admin"
	"refreshd/internal/config"
	"refreshd/internal/notify"
	"refreshd/internal/runner"
	"refreshd/internal/store"
)

// mapRunnerConfig converts the file representation (duration strings) into
// the engine's typed config. baseDir anchors relative manifest files and
// commands.
func mapRunnerConfig(cfg *config.Config, baseDir string) (runner.Config, error) {
	timeout, err := config.ParseDurationField("runner.default_timeout", cfg.Runner.DefaultTimeout)
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Workers:        cfg.Runner.Workers,
		QueueSize:      cfg.Runner.QueueSize,
		DefaultTimeout: timeout,
		HistorySize:    cfg.Runner.HistorySize,
		LogDir:         cfg.Runner.LogDir,
		BaseDir:        baseDir,
	}, nil
}

func mapStoreConfig(sc *config.StorageConfig) (store.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, nil
}

func mapAdminConfig(ac *config.AdminConfig) (admin.Config, error) {
	read, err := config.ParseDurationOrDefault("admin.read_timeout", ac.ReadTimeout, 10*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	write, err := config.ParseDurationOrDefault("admin.write_timeout", ac.WriteTimeout, 30*time.Second)
	if err != nil {
		return admin.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("admin.idle_timeout", ac.IdleTimeout, time.Minute)
	if err != nil {
		return admin.Config{}, err
	}
	return admin.Config{
		Enabled:       ac.Enabled,
		Addr:          ac.Addr,
		Token:         ac.Token,
		AllowInsecure: ac.AllowInsecure,
		TriggerPerMin: ac.TriggerPerMin,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

func mapNotifyConfig(nc *config.NotifyConfig) (notify.Config, error) {
	dedup, err := config.ParseDurationField("notify.dedup_window", nc.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:     nc.Enabled,
		ChatID:      nc.ChatID,
		OnSuccess:   nc.OnSuccess,
		RatePerSec:  nc.RatePerSec,
		QueueSize:   nc.QueueSize,
		DedupWindow: dedup,
	}, nil
}
