package app

import (
	"context"
	"errors"
	"strings"

	"autosched/internal/config"
	logx "autosched/pkg/logx"
	"autosched/pkg/systemd"
)

// validateReload rejects configs that would fail to wire. It runs before a
// reloaded config is committed.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	if cfg.Scheduler.Enabled && !cfg.EngineEnabled() {
		return errors.New("task_engine.enabled cannot be false while scheduler.enabled is true")
	}
	if _, err := newCalculator(cfg); err != nil {
		return err
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the live-reloadable parts of newCfg.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	_, _ = systemd.Reloading()
	defer func() { _, _ = systemd.Ready() }()

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect", logx.Strings("sections", restart))
	}
	if oldCfg != nil && (oldCfg.Scheduler.Timezone != newCfg.Scheduler.Timezone || oldCfg.Scheduler.HonorTimezone != newCfg.Scheduler.HonorTimezone) {
		a.log.Warn("scheduler timezone changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(newCfg))

	d, err := newCfg.Durations()
	if err != nil {
		a.log.Warn("invalid durations; keeping previous runtime config", logx.Err(err))
		return
	}
	ec := mapEngineConfig(newCfg, d)
	sc := mapSchedulerConfig(newCfg, d)
	// scheduler stops before the engine and starts after it
	if sc.Enabled {
		a.engine.Apply(ctx, ec)
		a.sched.Apply(ctx, sc)
	} else {
		a.sched.Apply(ctx, sc)
		a.engine.Apply(ctx, ec)
	}
	a.admin.Reconfigure(ctx, mapAdminConfig(newCfg, d))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
