package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a non-negative duration. Empty means zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// Durations holds every duration field of a Config, parsed. Zero means the
// field was omitted and the consumer's default applies.
type Durations struct {
	PollInterval   time.Duration
	RunTimeout     time.Duration
	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration
	BusyTimeout    time.Duration
	LockTTL        time.Duration
	RateIdleTTL    time.Duration

	AdminReadTimeout  time.Duration
	AdminWriteTimeout time.Duration
	AdminIdleTimeout  time.Duration
}

func (c *Config) Durations() (Durations, error) {
	var (
		d    Durations
		errs []error
	)
	parse := func(dst *time.Duration, path, raw string) {
		v, err := ParseDurationField(path, raw)
		if err != nil {
			errs = append(errs, err)
			return
		}
		*dst = v
	}
	parse(&d.PollInterval, "scheduler.poll_interval", c.Scheduler.PollInterval)
	parse(&d.RunTimeout, "scheduler.run_timeout", c.Scheduler.RunTimeout)
	if te := c.TaskEngine; te != nil {
		parse(&d.DefaultTimeout, "task_engine.default_timeout", te.DefaultTimeout)
		parse(&d.MaxQueueDelay, "task_engine.max_queue_delay", te.MaxQueueDelay)
	}
	if st := c.Storage; st != nil {
		parse(&d.BusyTimeout, "storage.busy_timeout", st.BusyTimeout)
	}
	if lk := c.Lock; lk != nil {
		parse(&d.LockTTL, "lock.ttl", lk.TTL)
	}
	if rl := c.RateLimit; rl != nil {
		parse(&d.RateIdleTTL, "rate_limit.idle_ttl", rl.IdleTTL)
	}
	if ad := c.Admin; ad != nil {
		parse(&d.AdminReadTimeout, "admin.read_timeout", ad.ReadTimeout)
		parse(&d.AdminWriteTimeout, "admin.write_timeout", ad.WriteTimeout)
		parse(&d.AdminIdleTimeout, "admin.idle_timeout", ad.IdleTimeout)
	}
	return d, errors.Join(errs...)
}

// EngineEnabled reports whether the task engine should run. An omitted
// task_engine section follows scheduler.enabled.
func (c *Config) EngineEnabled() bool {
	if c.TaskEngine != nil && c.TaskEngine.Enabled != nil {
		return *c.TaskEngine.Enabled
	}
	return c.Scheduler.Enabled
}
