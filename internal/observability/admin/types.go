// Package admin serves the operator HTTP API: health, scheduler status, the
// schedule view, the run journal, manual triggers and sync-completion intake.
// pprof handlers are mounted under /debug/pprof/ when enabled.
package admin

import (
	"context"
	"time"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/runtime/supervisor"
	"autosched/internal/schedule"
	"autosched/internal/task/scheduler"
	"autosched/internal/trigger"
	"autosched/internal/view"
)

// Config controls the optional admin HTTP server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const defaultAddr = "127.0.0.1:7070"

// Scheduler is the part of the scheduler service the API drives.
type Scheduler interface {
	Snapshot() scheduler.Snapshot
	Trigger(ctx context.Context, workflowID string, recordIDs []string) (trigger.Outcome, error)
	RunJob(ctx context.Context, ref automation.Ref) error
	SetEnabled(ctx context.Context, ref automation.Ref, enabled bool) (schedule.State, error)
}

type RunLister interface {
	ListRuns(ctx context.Context, ref string, limit int) ([]automation.Run, error)
}

type Deps struct {
	Scheduler Scheduler
	View      *view.Service
	Runs      RunLister
	Bus       eventbus.Bus
	// Supervisors reports goroutine stats for /status. Optional.
	Supervisors func() []supervisor.GoroutineStats
}
