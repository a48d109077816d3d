package storage

import (
	"context"
	"errors"
	"time"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "memory" (default when empty)
//   - "file": jsonl journal + snapshot next to Path
//   - "sqlite": SQLite database file at Path
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	RunHistory  int           // runs kept per store by memory and file drivers
}

// Store is the persistence API used by the resolver, the scheduler and the
// schedule view. Reads return copies; callers may mutate them freely.
type Store interface {
	ListRecordIDs(ctx context.Context, dataModelID string) ([]string, error)
	LoadRecord(ctx context.Context, dataModelID, recordID string) (rules.Record, error)
	SaveRecord(ctx context.Context, dataModelID, recordID string, rec rules.Record) error

	LoadScheduleState(ctx context.Context, ref string) (schedule.State, error)
	SaveScheduleState(ctx context.Context, ref string, st schedule.State) error
	ListScheduleStates(ctx context.Context) (map[string]schedule.State, error)

	PutWorkflow(ctx context.Context, w automation.Workflow) error
	GetWorkflow(ctx context.Context, id string) (automation.Workflow, error)
	ListWorkflows(ctx context.Context) ([]automation.Workflow, error)

	PutJob(ctx context.Context, j automation.Job) error
	GetJob(ctx context.Context, ref automation.Ref) (automation.Job, error)
	ListJobs(ctx context.Context) ([]automation.Job, error)

	AppendRun(ctx context.Context, run automation.Run) error
	// ListRuns returns the newest runs first. An empty ref lists all.
	ListRuns(ctx context.Context, ref string, limit int) ([]automation.Run, error)

	Close() error
}

const defaultRunHistory = 1000
