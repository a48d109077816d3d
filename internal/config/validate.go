package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"autosched/internal/schedule"
	logx "autosched/pkg/logx"
)

// Validate checks everything that can be checked without side effects.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	_, derr := cfg.Durations()
	add(derr)

	if lv := strings.TrimSpace(cfg.Logging.Level); lv != "" {
		if _, ok := logx.ParseLevel(lv); !ok {
			add(fmt.Errorf("logging.level: unknown level %q", lv))
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "", "console", "json":
	default:
		add(fmt.Errorf("logging.format: want console or json, got %q", cfg.Logging.Format))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 {
			add(errors.New("task_engine: workers, queue_size and history_size must be >= 0"))
		}
	}

	if st := cfg.Storage; st != nil {
		switch strings.ToLower(strings.TrimSpace(st.Driver)) {
		case "", "memory", "mem":
		case "file", "sqlite", "sqlite3":
			if strings.TrimSpace(st.Path) == "" {
				add(fmt.Errorf("storage.path: required for driver %q", st.Driver))
			}
		default:
			add(fmt.Errorf("storage.driver: unknown driver %q", st.Driver))
		}
	}

	if lk := cfg.Lock; lk != nil {
		switch strings.ToLower(strings.TrimSpace(lk.Driver)) {
		case "", "memory":
		case "redis":
			if strings.TrimSpace(lk.Redis.Addr) == "" {
				add(errors.New("lock.redis.addr: required for driver redis"))
			}
		default:
			add(fmt.Errorf("lock.driver: unknown driver %q", lk.Driver))
		}
	}

	if rl := cfg.RateLimit; rl != nil {
		if rl.Enabled && rl.ManualPerMinute <= 0 {
			add(errors.New("rate_limit.manual_per_minute: must be > 0 when enabled"))
		}
		if rl.Burst < 0 {
			add(errors.New("rate_limit.burst: must be >= 0"))
		}
	}

	if _, err := schedule.NewNormalizer(cfg.Normalizer.Overrides); err != nil {
		add(fmt.Errorf("normalizer.overrides: %w", err))
	}
	return errors.Join(errs...)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Scheduler: SchedulerConfig{Enabled: true, Timezone: "UTC", PollInterval: "1m"},
	}
}
