package app

import (
	"fmt"
	"strings"
	"time"

	"autosched/internal/config"
	"autosched/internal/lock"
	"autosched/internal/observability/admin"
	"autosched/internal/ratelimit"
	"autosched/internal/schedule"
	"autosched/internal/storage"
	"autosched/internal/task/engine"
	"autosched/internal/task/scheduler"
	logx "autosched/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapEngineConfig(cfg *config.Config, d config.Durations) engine.Config {
	ec := engine.Config{
		Enabled:        cfg.EngineEnabled(),
		DefaultTimeout: d.DefaultTimeout,
		MaxQueueDelay:  d.MaxQueueDelay,
	}
	if te := cfg.TaskEngine; te != nil {
		ec.Workers = te.Workers
		ec.QueueSize = te.QueueSize
		ec.HistorySize = te.HistorySize
	}
	return ec
}

func mapSchedulerConfig(cfg *config.Config, d config.Durations) scheduler.Config {
	return scheduler.Config{
		Enabled:      cfg.Scheduler.Enabled,
		PollInterval: d.PollInterval,
		RunTimeout:   d.RunTimeout,
	}
}

func mapStorageConfig(cfg *config.Config, d config.Durations) storage.Config {
	if cfg.Storage == nil {
		return storage.Config{Driver: "memory"}
	}
	busy := d.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: busy,
		RunHistory:  cfg.Storage.RunHistory,
	}
}

// newLocker returns the configured lock and a close func for its client.
func newLocker(cfg *config.Config, d config.Durations) (lock.Locker, func() error, error) {
	noop := func() error { return nil }
	if cfg.Lock == nil {
		return lock.NewMemory(), noop, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Lock.Driver)) {
	case "", "memory":
		return lock.NewMemory(), noop, nil
	case "redis":
		r := lock.NewRedis(lock.RedisConfig{
			Addr:     cfg.Lock.Redis.Addr,
			Password: cfg.Lock.Redis.Password,
			DB:       cfg.Lock.Redis.DB,
			Prefix:   cfg.Lock.Redis.Prefix,
			TTL:      d.LockTTL,
		})
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown lock.driver: %s", cfg.Lock.Driver)
	}
}

func newLimiter(cfg *config.Config, d config.Durations) ratelimit.Limiter {
	rl := cfg.RateLimit
	if rl == nil || !rl.Enabled {
		return ratelimit.Unlimited{}
	}
	return ratelimit.NewKeyed(ratelimit.Config{
		PerMinute: rl.ManualPerMinute,
		Burst:     rl.Burst,
		IdleTTL:   d.RateIdleTTL,
	})
}

func newCalculator(cfg *config.Config) (schedule.Calculator, error) {
	loc := time.UTC
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return schedule.Calculator{}, fmt.Errorf("scheduler.timezone: %w", err)
		}
		loc = l
	}
	return schedule.Calculator{
		Reference:     loc,
		HonorTimezone: cfg.Scheduler.HonorTimezone,
		Cron:          schedule.NewRobfigCron(),
	}, nil
}

func mapAdminConfig(cfg *config.Config, d config.Durations) admin.Config {
	ad := cfg.Admin
	if ad == nil {
		return admin.Config{}
	}
	return admin.Config{
		Enabled:       ad.Enabled,
		Addr:          strings.TrimSpace(ad.Addr),
		Token:         strings.TrimSpace(ad.Token),
		AllowInsecure: ad.AllowInsecure,
		Pprof:         ad.Pprof,
		ReadTimeout:   d.AdminReadTimeout,
		WriteTimeout:  d.AdminWriteTimeout,
		IdleTimeout:   d.AdminIdleTimeout,
	}
}
