package config

import (
	"reflect"
	"slices"
	"strings"

	logx "autosched/pkg/logx"
)

// Sections that are only read at startup. A change to them is logged but
// needs a restart to take effect.
var restartSections = []string{"storage", "lock", "catalog"}

// SummarizeConfigChange returns the changed section names and safe structured
// attrs for logging. Secrets (the redis password, the admin token) are
// reported only as set or unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if trimmed(oldCfg.Scheduler) != trimmed(newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
			logx.Bool("scheduler.honor_timezone", newCfg.Scheduler.HonorTimezone),
			logx.String("scheduler.poll_interval", strings.TrimSpace(newCfg.Scheduler.PollInterval)),
			logx.String("scheduler.run_timeout", strings.TrimSpace(newCfg.Scheduler.RunTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) || oldCfg.EngineEnabled() != newCfg.EngineEnabled() {
		changed = append(changed, "task_engine")
		te := newCfg.TaskEngine
		if te == nil {
			te = &TaskEngineConfig{}
		}
		attrs = append(attrs,
			logx.Bool("task_engine.enabled", newCfg.EngineEnabled()),
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(te.DefaultTimeout)),
			logx.String("task_engine.max_queue_delay", strings.TrimSpace(te.MaxQueueDelay)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if st := newCfg.Storage; st != nil {
			attrs = append(attrs,
				logx.String("storage.driver", st.Driver),
				logx.String("storage.path", st.Path),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Lock, newCfg.Lock) {
		changed = append(changed, "lock")
		if lk := newCfg.Lock; lk != nil {
			attrs = append(attrs,
				logx.String("lock.driver", lk.Driver),
				logx.String("lock.ttl", lk.TTL),
				logx.String("lock.redis.addr", lk.Redis.Addr),
				logx.Bool("lock.redis.password_set", lk.Redis.Password != ""),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.RateLimit, newCfg.RateLimit) {
		changed = append(changed, "rate_limit")
		if rl := newCfg.RateLimit; rl != nil {
			attrs = append(attrs,
				logx.Bool("rate_limit.enabled", rl.Enabled),
				logx.Int("rate_limit.manual_per_minute", rl.ManualPerMinute),
				logx.Int("rate_limit.burst", rl.Burst),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Normalizer, newCfg.Normalizer) {
		changed = append(changed, "normalizer")
		attrs = append(attrs, logx.Int("normalizer.families", len(newCfg.Normalizer.Overrides)))
	}

	if strings.TrimSpace(oldCfg.Catalog.Path) != strings.TrimSpace(newCfg.Catalog.Path) {
		changed = append(changed, "catalog")
		attrs = append(attrs, logx.String("catalog.path", strings.TrimSpace(newCfg.Catalog.Path)))
	}

	if !reflect.DeepEqual(oldCfg.Admin, newCfg.Admin) {
		changed = append(changed, "admin")
		if ad := newCfg.Admin; ad != nil {
			attrs = append(attrs,
				logx.Bool("admin.enabled", ad.Enabled),
				logx.String("admin.addr", strings.TrimSpace(ad.Addr)),
				logx.Bool("admin.token_set", strings.TrimSpace(ad.Token) != ""),
				logx.Bool("admin.pprof", ad.Pprof),
			)
		}
	}

	return changed, attrs
}

// RestartRequired returns the changed sections that a live reload cannot apply.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if slices.Contains(restartSections, s) {
			out = append(out, s)
		}
	}
	return out
}

func trimmed(s SchedulerConfig) SchedulerConfig {
	s.Timezone = strings.TrimSpace(s.Timezone)
	s.PollInterval = strings.TrimSpace(s.PollInterval)
	s.RunTimeout = strings.TrimSpace(s.RunTimeout)
	return s
}
