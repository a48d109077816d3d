package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"autosched/internal/catalog"
	"autosched/internal/config"
	"autosched/internal/eventbus"
	"autosched/internal/lock"
	"autosched/internal/observability/admin"
	"autosched/internal/rules"
	"autosched/internal/runtime/supervisor"
	"autosched/internal/schedule"
	"autosched/internal/storage"
	"autosched/internal/task/engine"
	"autosched/internal/task/scheduler"
	"autosched/internal/trigger"
	"autosched/internal/view"
	logx "autosched/pkg/logx"
	"autosched/pkg/systemd"
)

type App struct {
	cfgPath string

	mu sync.Mutex // guards sup

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	root  logx.Logger
	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	locker    lock.Locker
	closeLock func() error

	norm *schedule.Normalizer
	calc schedule.Calculator
	res  *trigger.Resolver

	engine *engine.Service
	sched  *scheduler.Service
	view   *view.Service
	admin  *admin.Service
}

// New loads cfgPath and wires every component. An empty path uses
// config.Default and disables file watching. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	var cfg *config.Config
	if cfgPath == "" {
		cfg = config.Default()
		cfgm.Commit(cfg)
	} else {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	return build(cfgPath, cfgm, cfg)
}

// NewFromConfig wires an in-memory config. The result never watches a file.
func NewFromConfig(cfg *config.Config) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	cfgm := config.NewConfigManager("")
	cfgm.Commit(cfg)
	return build("", cfgm, cfg)
}

func build(cfgPath string, cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	norm, err := schedule.NewNormalizer(cfg.Normalizer.Overrides)
	if err != nil {
		return nil, fmt.Errorf("normalizer.overrides: %w", err)
	}
	calc, err := newCalculator(cfg)
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))

	store, err := storage.Open(mapStorageConfig(cfg, d), root)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	locker, closeLock, err := newLocker(cfg, d)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	res := trigger.NewResolver(trigger.Config{
		Calculator: calc,
		Records:    store,
		States:     store,
		Runs:       store,
		Locker:     locker,
		Limiter:    newLimiter(cfg, d),
		Executor:   rules.NewExecutor(rules.NewExprEvaluator()),
		Bus:        bus,
		Log:        root,
	})
	eng := engine.New(mapEngineConfig(cfg, d), root, bus)
	sched := scheduler.New(mapSchedulerConfig(cfg, d), scheduler.Deps{
		Engine:     eng,
		Store:      store,
		Resolver:   res,
		Calculator: calc,
		Locker:     locker,
		Bus:        bus,
		Log:        root,
	})

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		root:      root,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		locker:    locker,
		closeLock: closeLock,
		norm:      norm,
		calc:      calc,
		res:       res,
		engine:    eng,
		sched:     sched,
		view:      view.New(store),
	}
	a.admin = admin.New(mapAdminConfig(cfg, d), admin.Deps{
		Scheduler:   sched,
		View:        a.view,
		Runs:        store,
		Bus:         bus,
		Supervisors: a.supervisorStats,
	}, root)
	if p := cfg.Catalog.Path; p != "" {
		if _, err := a.LoadCatalog(context.Background(), p); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Config() *config.Config          { return a.cfgm.Get() }
func (a *App) Log() logx.Logger                 { return a.root }
func (a *App) Bus() eventbus.Bus                { return a.bus }
func (a *App) Store() storage.Store             { return a.store }
func (a *App) Normalizer() *schedule.Normalizer { return a.norm }
func (a *App) Calculator() schedule.Calculator  { return a.calc }
func (a *App) Resolver() *trigger.Resolver      { return a.res }
func (a *App) Engine() *engine.Service          { return a.engine }
func (a *App) Scheduler() *scheduler.Service    { return a.sched }
func (a *App) View() *view.Service              { return a.view }
func (a *App) Admin() *admin.Service            { return a.admin }

// supervisorStats merges app and worker pool goroutine stats for the admin
// API. Empty before Start.
func (a *App) supervisorStats() []supervisor.GoroutineStats {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	return append(sup.Stats(), a.engine.Supervisor().Stats()...)
}

// LoadCatalog upserts the automations defined in path and seeds their
// schedule state.
func (a *App) LoadCatalog(ctx context.Context, path string) (catalog.Report, error) {
	c, err := catalog.Load(path, a.norm)
	if err != nil {
		return catalog.Report{}, err
	}
	for _, w := range c.Warnings {
		a.log.Warn("catalog warning", logx.String("path", path), logx.String("warning", w))
	}
	rep, err := catalog.Apply(ctx, a.store, c, a.calc, time.Now(), a.root)
	if err != nil {
		return rep, err
	}
	a.log.Info("catalog applied",
		logx.String("path", path),
		logx.Int("workflows", rep.Workflows),
		logx.Int("jobs", rep.Jobs),
		logx.Int("seeded", len(rep.Seeded)),
		logx.Int("rescheduled", len(rep.Rescheduled)),
	)
	return rep, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.sup != nil {
		a.mu.Unlock()
		return errors.New("app already started")
	}
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.mu.Unlock()
	runCtx := a.sup.Context()

	a.cfgm.SetLogger(a.root)
	a.cfgm.SetValidator(a.validateReload)

	a.engine.Start(runCtx)
	a.sched.Start(runCtx)
	if a.admin.Enabled() {
		a.admin.Start(runCtx)
	}

	a.sup.Go("eventbus.log", a.logEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	if a.cfgPath != "" {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}
	a.sup.Go("systemd.watchdog", systemd.Watchdog)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}
	a.log.Info("app started",
		logx.Bool("scheduler", a.sched.Enabled()),
		logx.Bool("task_engine", a.engine.Enabled()),
		logx.Bool("admin", a.admin.Enabled()),
	)
	return nil
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = systemd.Stopping()

	a.sup.Cancel()

	a.step(ctx, "admin", 2*time.Second, func(c context.Context) error { a.admin.Stop(c); return nil })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 5*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	return a.Close()
}

// step runs one shutdown step bounded by max and by ctx's deadline.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// Close releases storage, the lock client and log files. Start must not be
// running.
func (a *App) Close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.closeLock != nil {
		errs = append(errs, a.closeLock())
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Close())
	}
	return errors.Join(errs...)
}
