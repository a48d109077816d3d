package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/lock"
	"autosched/internal/schedule"
	"autosched/internal/task/engine"
	"autosched/internal/trigger"
	logx "autosched/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Enabled bool
	// PollInterval is how often schedule state is scanned for due entries.
	PollInterval time.Duration
	// RunTimeout bounds one dispatched run. 0 uses the engine default.
	RunTimeout time.Duration
}

const defaultPollInterval = time.Minute

// Store is the persistence the scheduler needs.
type Store interface {
	LoadScheduleState(ctx context.Context, ref string) (schedule.State, error)
	SaveScheduleState(ctx context.Context, ref string, st schedule.State) error
	ListScheduleStates(ctx context.Context) (map[string]schedule.State, error)
	GetWorkflow(ctx context.Context, id string) (automation.Workflow, error)
	ListWorkflows(ctx context.Context) ([]automation.Workflow, error)
	GetJob(ctx context.Context, ref automation.Ref) (automation.Job, error)
	ListJobs(ctx context.Context) ([]automation.Job, error)
	AppendRun(ctx context.Context, run automation.Run) error
}

// Resolver runs one workflow against one signal.
type Resolver interface {
	Resolve(ctx context.Context, w automation.Workflow, sig trigger.Signal) trigger.Outcome
}

// JobRunner executes notebook and data-sync jobs. The scheduler only decides
// when they run.
type JobRunner interface {
	RunJob(ctx context.Context, job automation.Job, scheduledFor time.Time) error
}

// Deps are the collaborators of Service. Engine, Store and Resolver are
// required.
type Deps struct {
	Engine     *engine.Service
	Store      Store
	Resolver   Resolver
	Runner     JobRunner // defaults to BusRunner on Bus
	Calculator schedule.Calculator
	Locker     lock.Locker // guards job runs; defaults to an in-process lock
	Bus        eventbus.Bus
	Now        func() time.Time
	Log        logx.Logger
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	bus    eventbus.Bus
	engine *engine.Service
	store  Store
	res    Resolver
	runner JobRunner
	calc   schedule.Calculator
	locker lock.Locker
	now    func() time.Time

	c       *cron.Cron
	entryID cron.EntryID
	unsub   func()
	subDone chan struct{}

	polls      atomic.Uint64
	dispatched atomic.Uint64
	lastPoll   atomic.Int64

	// Enqueue error throttling: key is the automation ref.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type DueInfo struct {
	Ref     string
	NextRun time.Time
}

type Snapshot struct {
	Enabled      bool
	Running      bool
	PollInterval time.Duration
	LastPoll     time.Time
	NextPoll     time.Time
	Polls        uint64
	Dispatched   uint64

	// Executor diagnostics (task engine).
	Engine engine.Snapshot
}
