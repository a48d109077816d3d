package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"autosched/internal/eventbus"
	"autosched/internal/lock"
	logx "autosched/pkg/logx"
)

func New(cfg Config, deps Deps) *Service {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemory()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Runner == nil {
		deps.Runner = BusRunner{Bus: deps.Bus}
	}
	return &Service{
		cfg:         cfg,
		log:         deps.Log.With(logx.String("comp", "scheduler")),
		bus:         deps.Bus,
		engine:      deps.Engine,
		store:       deps.Store,
		res:         deps.Resolver,
		runner:      deps.Runner,
		calc:        deps.Calculator,
		locker:      deps.Locker,
		now:         deps.Now,
		lastEnqWarn: map[string]time.Time{},
	}
}

// Enabled reports the current config flag. (Thread-safe; Apply() may run concurrently.)
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Apply swaps the config. A changed poll interval restarts the poll loop.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	running := s.c != nil
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
	case running && old.PollInterval != cfg.PollInterval:
		s.Stop(ctx)
		s.Start(ctx)
	case !running && cfg.Enabled:
		s.Start(ctx)
	}
}

// Start seeds missing schedule state, starts the poll loop and subscribes to
// sync completion events.
//
// Execution happens in the task engine; Start only triggers.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.c != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return
	}
	every := s.cfg.PollInterval
	if every <= 0 {
		every = defaultPollInterval
	}
	// poll runs use a detached context; Stop ends them via the engine
	runCtx := context.WithoutCancel(ctx)
	s.c = cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s.entryID = s.c.Schedule(cron.Every(every), cron.FuncJob(func() { s.Poll(runCtx) }))
	s.c.Start()

	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(64, eventbus.TypeSyncCompleted)
		done := make(chan struct{})
		s.unsub = unsub
		s.subDone = done
		go func() {
			defer close(done)
			for ev := range ch {
				s.onSyncCompleted(runCtx, ev)
			}
		}()
	}
	s.mu.Unlock()

	s.log.Info("service started", logx.Duration("poll_interval", every))
	s.Poll(runCtx)
}

// Stop stops polling and event intake. Queued runs are left to the engine.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	s.entryID = 0
	unsub := s.unsub
	done := s.subDone
	s.unsub = nil
	s.subDone = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	s.log.Info("stop requested")

	if unsub != nil {
		unsub()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}
