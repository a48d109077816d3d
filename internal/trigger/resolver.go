package trigger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/lock"
	"autosched/internal/ratelimit"
	"autosched/internal/rules"
	"autosched/internal/schedule"
	logx "autosched/pkg/logx"
)

type Config struct {
	Calculator schedule.Calculator
	Records    RecordStore
	States     ScheduleStore
	Runs       RunLog            // optional
	Locker     lock.Locker       // defaults to an in-process lock
	Limiter    ratelimit.Limiter // applies to manual signals; defaults to unlimited
	Executor   *rules.Executor   // defaults to the built-in formula evaluator
	Bus        eventbus.Bus      // optional; receives TypeRunFinished
	Now        func() time.Time
	Log        logx.Logger
}

type Resolver struct {
	calc    schedule.Calculator
	records RecordStore
	states  ScheduleStore
	runs    RunLog
	locker  lock.Locker
	limiter ratelimit.Limiter
	exec    *rules.Executor
	bus     eventbus.Bus
	now     func() time.Time
	log     logx.Logger
}

func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		calc:    cfg.Calculator,
		records: cfg.Records,
		states:  cfg.States,
		runs:    cfg.Runs,
		locker:  cfg.Locker,
		limiter: cfg.Limiter,
		exec:    cfg.Executor,
		bus:     cfg.Bus,
		now:     cfg.Now,
		log:     cfg.Log,
	}
	if r.locker == nil {
		r.locker = lock.NewMemory()
	}
	if r.limiter == nil {
		r.limiter = ratelimit.Unlimited{}
	}
	if r.exec == nil {
		r.exec = rules.NewExecutor(nil)
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.log.IsZero() {
		r.log = logx.Nop()
	}
	r.log = r.log.With(logx.String("comp", "trigger"))
	return r
}

// Resolve runs w against sig. It never panics and never returns an error;
// everything is reported in the Outcome.
func (r *Resolver) Resolve(ctx context.Context, w automation.Workflow, sig Signal) Outcome {
	now := sig.At
	if now.IsZero() {
		now = r.now()
	}
	m := newMachine()
	out := Outcome{
		RunID:      uuid.NewString(),
		WorkflowID: w.ID,
		Signal:     sig.Kind,
		Status:     Idle,
		StartedAt:  now,
	}
	idle := func(reason string, err error) Outcome {
		out.Reason = reason
		out.Err = err
		out.Path = m.path
		out.FinishedAt = out.StartedAt
		r.log.Debug("trigger.idle",
			logx.String("workflow", w.ID),
			logx.String("signal", string(sig.Kind)),
			logx.String("reason", reason),
		)
		return out
	}

	// Cheap checks that need neither the lock nor the store.
	switch sig.Kind {
	case Tick:
		if !w.Scheduled() {
			return idle("workflow is not scheduled", ErrNotMatched)
		}
		if w.Status == schedule.StatusPaused {
			return idle("workflow is paused", ErrDisabled)
		}
	case Event:
		if w.TriggerType != automation.TriggerEvent || !w.EventSubscription.Matches(sig.SourceType, sig.SourceID) {
			return idle("event does not match subscription", ErrNotMatched)
		}
		if w.Status == schedule.StatusPaused {
			return idle("workflow is paused", ErrDisabled)
		}
	case Manual:
		if !r.limiter.Allow(w.ID) {
			return idle("manual trigger rate limited", ErrRateLimited)
		}
	default:
		return idle(fmt.Sprintf("unknown signal kind %q", sig.Kind), ErrNotMatched)
	}

	ref := w.Ref().String()
	release, err := r.locker.TryLock(ctx, ref)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return idle("another run is in progress", ErrConcurrentRun)
		}
		return idle("lock unavailable", fmt.Errorf("%w: %w", ErrConcurrentRun, err))
	}
	defer release()

	st, err := r.loadState(ctx, ref, w)
	if err != nil {
		return idle("schedule state unavailable", fmt.Errorf("%w: %w", ErrPersistence, err))
	}
	switch sig.Kind {
	case Tick:
		if !st.Due(now) {
			return idle("not due", ErrNotDue)
		}
	case Event:
		if !st.Enabled {
			return idle("workflow is disabled", ErrDisabled)
		}
	}

	_ = m.to(Due)
	_ = m.to(Evaluating)

	status, reason, runErr := r.evaluate(ctx, w, sig, &out)

	// enable and pause flags written during evaluation win; the run owns
	// only lastRun and nextRun
	if cur, err := r.states.LoadScheduleState(ctx, ref); err == nil {
		st.Enabled = cur.Enabled
		st.Status = cur.Status
	}
	last := now
	st.LastRunAt = &last
	st.NextRunAt = nil
	if w.Scheduled() {
		if next, ok := r.calc.ComputeNextRun(*w.Schedule, now, &last); ok {
			st.NextRunAt = &next
		}
	}
	if err := r.states.SaveScheduleState(ctx, ref, st); err != nil {
		status = Failed
		reason = "saving schedule state failed"
		runErr = errors.Join(runErr, fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	_ = m.to(status)
	_ = m.to(Idle)
	out.Status = status
	out.Reason = reason
	out.Err = runErr
	out.LastRunAt = st.LastRunAt
	out.NextRunAt = st.NextRunAt
	out.Path = m.path
	out.FinishedAt = r.now()
	if out.FinishedAt.Before(out.StartedAt) {
		out.FinishedAt = out.StartedAt
	}

	r.journal(ctx, ref, out)
	return out
}

func (r *Resolver) loadState(ctx context.Context, ref string, w automation.Workflow) (schedule.State, error) {
	st, err := r.states.LoadScheduleState(ctx, ref)
	if errors.Is(err, automation.ErrNotFound) {
		return schedule.State{Enabled: true, Status: w.Status}, nil
	}
	return st, err
}

func (r *Resolver) evaluate(ctx context.Context, w automation.Workflow, sig Signal, out *Outcome) (State, string, error) {
	ids := sig.RecordIDs
	if len(ids) == 0 {
		var err error
		ids, err = r.records.ListRecordIDs(ctx, w.DataModelID)
		if err != nil {
			return Failed, "listing records failed", fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}
	if len(ids) == 0 {
		return Skipped, "no records", nil
	}

	var fatal []error
	changed := map[string]struct{}{}
	var applied, matched, allFailed int
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			fatal = append(fatal, err)
			break
		}
		rr := r.runRecord(ctx, w, id)
		out.Records = append(out.Records, rr)
		if rr.Err != nil {
			fatal = append(fatal, rr.Err)
		}
		if rr.Matched {
			matched++
		}
		switch rr.Status {
		case Applied:
			applied++
			for _, c := range rr.Changed {
				changed[c] = struct{}{}
			}
		case Failed:
			if rr.Err == nil {
				allFailed++
			}
		}
	}
	for c := range changed {
		out.ChangedAttributeIDs = append(out.ChangedAttributeIDs, c)
	}
	sort.Strings(out.ChangedAttributeIDs)

	switch {
	case len(fatal) > 0:
		return Failed, fmt.Sprintf("%d of %d records failed", len(fatal), len(ids)), errors.Join(fatal...)
	case applied > 0:
		return Applied, fmt.Sprintf("applied to %d of %d records", applied, len(ids)), nil
	case allFailed > 0:
		return Failed, "no action succeeded", ErrAllActionsFail
	case matched == 0:
		return Skipped, "conditions not met", nil
	}
	return Skipped, "nothing applied", nil
}

func (r *Resolver) runRecord(ctx context.Context, w automation.Workflow, id string) RecordResult {
	rr := RecordResult{RecordID: id}
	rec, err := r.records.LoadRecord(ctx, w.DataModelID, id)
	if err != nil {
		rr.Status = Failed
		if errors.Is(err, automation.ErrRecordNotFound) {
			rr.Err = fmt.Errorf("record %s: %w", id, err)
		} else {
			rr.Err = fmt.Errorf("record %s: %w: %w", id, ErrPersistence, err)
		}
		return rr
	}

	ok, condErrs := rules.EvaluateDetailed(w.Conditions, rec)
	rr.Failures = append(rr.Failures, condErrs...)
	if !ok {
		rr.Status = Skipped
		return rr
	}
	rr.Matched = true

	res := r.exec.Execute(w.Actions, rec)
	for _, f := range res.Failures {
		rr.Failures = append(rr.Failures, f)
	}
	if res.AllFailed() {
		rr.Status = Failed
		return rr
	}
	if len(res.Changed) > 0 {
		if err := r.records.SaveRecord(ctx, w.DataModelID, id, res.Updated); err != nil {
			rr.Status = Failed
			rr.Err = fmt.Errorf("record %s: %w: %w", id, ErrPersistence, err)
			return rr
		}
	}
	rr.Status = Applied
	rr.Changed = res.Changed
	return rr
}

func (r *Resolver) journal(ctx context.Context, ref string, out Outcome) {
	fields := []logx.Field{
		logx.String("workflow", out.WorkflowID),
		logx.String("run_id", out.RunID),
		logx.String("signal", string(out.Signal)),
		logx.String("status", string(out.Status)),
		logx.String("reason", out.Reason),
		logx.Int("changed", len(out.ChangedAttributeIDs)),
		logx.Int("records", len(out.Records)),
	}
	if out.NextRunAt != nil {
		fields = append(fields, logx.Time("next_run", *out.NextRunAt))
	}
	if out.Status == Failed {
		r.log.Warn("trigger.resolved", append(fields, logx.Err(out.Err))...)
	} else {
		r.log.Info("trigger.resolved", fields...)
	}

	run := out.Run(ref)
	if r.runs != nil {
		if err := r.runs.AppendRun(ctx, run); err != nil {
			r.log.Warn("run journal append failed", logx.String("workflow", out.WorkflowID), logx.Err(err))
		}
	}
	if r.bus != nil {
		r.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: run})
	}
}

// Run converts o to its journal form.
func (o Outcome) Run(ref string) automation.Run {
	run := automation.Run{
		ID:         o.RunID,
		Ref:        ref,
		Signal:     string(o.Signal),
		Status:     string(o.Status),
		Reason:     o.Reason,
		Changed:    o.ChangedAttributeIDs,
		Records:    len(o.Records),
		StartedAt:  o.StartedAt,
		FinishedAt: o.FinishedAt,
		NextRunAt:  o.NextRunAt,
	}
	if o.Err != nil {
		run.Error = o.Err.Error()
	}
	return run
}
