// Package trigger resolves a signal against one workflow: it decides whether
// the workflow runs, evaluates conditions and applies actions per record,
// and persists the resulting change-set and schedule state.
package trigger

import (
	"context"
	"errors"
	"time"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
)

type SignalKind string

const (
	Tick   SignalKind = "TICK"
	Event  SignalKind = "EVENT"
	Manual SignalKind = "MANUAL"
)

type Signal struct {
	Kind       SignalKind
	SourceType string // EVENT only
	SourceID   string // EVENT only
	// RecordIDs restricts the run to these records. Empty means every record
	// of the workflow's data model.
	RecordIDs []string
	// At overrides the resolver clock when set.
	At time.Time
}

// RecordStore is the record collaborator. LoadRecord returns
// automation.ErrRecordNotFound for unknown records.
type RecordStore interface {
	ListRecordIDs(ctx context.Context, dataModelID string) ([]string, error)
	LoadRecord(ctx context.Context, dataModelID, recordID string) (rules.Record, error)
	SaveRecord(ctx context.Context, dataModelID, recordID string, rec rules.Record) error
}

// ScheduleStore is the schedule-state collaborator. LoadScheduleState
// returns automation.ErrNotFound when no state exists yet.
type ScheduleStore interface {
	LoadScheduleState(ctx context.Context, ref string) (schedule.State, error)
	SaveScheduleState(ctx context.Context, ref string, st schedule.State) error
}

// RunLog journals run outcomes.
type RunLog interface {
	AppendRun(ctx context.Context, run automation.Run) error
}

var (
	ErrConcurrentRun  = errors.New("concurrent run in progress")
	ErrRateLimited    = errors.New("rate limited")
	ErrNotDue         = errors.New("not due")
	ErrNotMatched     = errors.New("signal does not match automation")
	ErrDisabled       = errors.New("automation disabled")
	ErrPersistence    = errors.New("persistence failure")
	ErrAllActionsFail = errors.New("all actions failed")
)

// RecordResult is the per-record part of an Outcome.
type RecordResult struct {
	RecordID string
	Matched  bool
	Status   State
	Changed  []string
	Failures []error
	Err      error
}

// Outcome describes one resolution. Status is Idle when the signal did not
// start a run; Reason and Err say why.
type Outcome struct {
	RunID               string
	WorkflowID          string
	Signal              SignalKind
	Status              State
	Reason              string
	Err                 error
	ChangedAttributeIDs []string
	NextRunAt           *time.Time
	LastRunAt           *time.Time
	Records             []RecordResult
	Path                []State
	StartedAt           time.Time
	FinishedAt          time.Time
}

// Ran reports whether the signal produced a run.
func (o Outcome) Ran() bool { return IsTerminal(o.Status) }
