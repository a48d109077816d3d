package catalog

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"autosched/internal/automation"
	"autosched/internal/schedule"
	logx "autosched/pkg/logx"
)

// Store is what Apply writes to.
type Store interface {
	PutWorkflow(ctx context.Context, w automation.Workflow) error
	GetWorkflow(ctx context.Context, id string) (automation.Workflow, error)
	PutJob(ctx context.Context, j automation.Job) error
	GetJob(ctx context.Context, ref automation.Ref) (automation.Job, error)
	LoadScheduleState(ctx context.Context, ref string) (schedule.State, error)
	SaveScheduleState(ctx context.Context, ref string, st schedule.State) error
}

// Report summarizes one Apply.
type Report struct {
	Workflows int
	Jobs      int
	// Seeded lists refs that got their first schedule state.
	Seeded []string
	// Rescheduled lists refs whose schedule changed and whose next run was
	// recomputed.
	Rescheduled []string
}

// Apply upserts every entry of c. A new entry gets schedule state with its
// next run computed at now; an entry whose schedule changed gets its next
// run recomputed. Untouched entries keep their state, so reloading the same
// catalog does not shift pending runs.
func Apply(ctx context.Context, store Store, c *Catalog, calc schedule.Calculator, now time.Time, log logx.Logger) (Report, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "catalog"))
	var rep Report
	var errs []error

	for _, w := range c.Workflows {
		prev, err := store.GetWorkflow(ctx, w.ID)
		changed := err != nil || !reflect.DeepEqual(prev.Schedule, w.Schedule) || prev.TriggerType != w.TriggerType
		if err != nil && !errors.Is(err, automation.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if err := store.PutWorkflow(ctx, w); err != nil {
			errs = append(errs, fmt.Errorf("put workflow %s: %w", w.ID, err))
			continue
		}
		rep.Workflows++
		var spec *schedule.Spec
		if w.Scheduled() {
			spec = w.Schedule
		}
		if err := syncState(ctx, store, w.Ref(), spec, w.Status, changed, calc, now, &rep); err != nil {
			errs = append(errs, err)
		}
	}
	for _, j := range c.Jobs {
		prev, err := store.GetJob(ctx, j.Ref())
		changed := err != nil || !reflect.DeepEqual(prev.Schedule, j.Schedule)
		if err != nil && !errors.Is(err, automation.ErrNotFound) {
			errs = append(errs, err)
			continue
		}
		if err := store.PutJob(ctx, j); err != nil {
			errs = append(errs, fmt.Errorf("put job %s: %w", j.Ref(), err))
			continue
		}
		rep.Jobs++
		spec := j.Schedule
		if err := syncState(ctx, store, j.Ref(), &spec, "", changed, calc, now, &rep); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("catalog applied",
		logx.Int("workflows", rep.Workflows),
		logx.Int("jobs", rep.Jobs),
		logx.Int("seeded", len(rep.Seeded)),
		logx.Int("rescheduled", len(rep.Rescheduled)),
	)
	return rep, errors.Join(errs...)
}

// syncState writes schedule state for ref. spec is nil for workflows that do
// not fire on a schedule; status is empty for jobs.
func syncState(ctx context.Context, store Store, ref automation.Ref, spec *schedule.Spec, status schedule.Status, changed bool, calc schedule.Calculator, now time.Time, rep *Report) error {
	key := ref.String()
	st, err := store.LoadScheduleState(ctx, key)
	fresh := errors.Is(err, automation.ErrNotFound)
	if err != nil && !fresh {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	if fresh {
		st = schedule.State{Enabled: true, Status: schedule.StatusActive}
	}
	if status != "" {
		st.Status = status
	}
	if fresh || changed {
		st.NextRunAt = nil
		if spec != nil {
			if next, ok := calc.PlanRun(*spec, now, st.LastRunAt); ok {
				st.NextRunAt = &next
			}
		}
	}
	if err := store.SaveScheduleState(ctx, key, st); err != nil {
		return fmt.Errorf("save state %s: %w", key, err)
	}
	switch {
	case fresh:
		rep.Seeded = append(rep.Seeded, key)
	case changed:
		rep.Rescheduled = append(rep.Rescheduled, key)
	}
	return nil
}
