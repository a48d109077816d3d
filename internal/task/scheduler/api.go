package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autosched/internal/automation"
	"autosched/internal/lock"
	"autosched/internal/schedule"
	"autosched/internal/trigger"
	logx "autosched/pkg/logx"
)

// Trigger runs a workflow now and waits for the outcome. recordIDs narrows
// the run; empty means every record.
func (s *Service) Trigger(ctx context.Context, workflowID string, recordIDs []string) (trigger.Outcome, error) {
	w, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return trigger.Outcome{}, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	out := s.res.Resolve(ctx, w, trigger.Signal{Kind: trigger.Manual, RecordIDs: recordIDs})
	return out, nil
}

// RunJob dispatches a notebook or data-sync job now, regardless of its
// schedule.
func (s *Service) RunJob(ctx context.Context, ref automation.Ref) error {
	if ref.Family == schedule.FamilyWorkflow {
		return fmt.Errorf("%s is a workflow; use Trigger", ref)
	}
	return s.jobTask(ctx, ref, trigger.Manual, s.now())
}

// SetEnabled enables or disables scheduled firing of ref. Disabling drops
// any run of ref still waiting in the queue. Enabling recomputes a missing
// next run.
//
// The state is written under the automation's run lock, so a run already
// evaluating finishes first. A run that outlasts ctx fails the call with
// trigger.ErrConcurrentRun.
func (s *Service) SetEnabled(ctx context.Context, ref automation.Ref, enabled bool) (schedule.State, error) {
	key := ref.String()
	spec, status, err := s.specFor(ctx, ref)
	if err != nil {
		return schedule.State{}, err
	}
	if !enabled && s.engine != nil {
		s.engine.Cancel(key)
	}
	release, err := s.lockWait(ctx, key)
	if err != nil {
		return schedule.State{}, err
	}
	defer release()

	st, err := s.store.LoadScheduleState(ctx, key)
	if errors.Is(err, automation.ErrNotFound) {
		st, err = schedule.State{Status: status}, nil
	}
	if err != nil {
		return schedule.State{}, err
	}
	st.Enabled = enabled
	if enabled && st.NextRunAt == nil && spec != nil {
		if next, ok := s.calc.PlanRun(*spec, s.now(), st.LastRunAt); ok {
			st.NextRunAt = &next
		}
	}
	if err := s.store.SaveScheduleState(ctx, key, st); err != nil {
		return schedule.State{}, err
	}
	if !enabled && s.engine != nil {
		s.engine.Cancel(key)
	}
	s.log.Info("schedule toggled", logx.String("ref", key), logx.Bool("enabled", enabled))
	return st, nil
}

const lockRetryEvery = 50 * time.Millisecond

// lockWait acquires the run lock for key, retrying while a run holds it.
func (s *Service) lockWait(ctx context.Context, key string) (lock.Release, error) {
	t := time.NewTicker(lockRetryEvery)
	defer t.Stop()
	for {
		release, err := s.locker.TryLock(ctx, key)
		switch {
		case err == nil:
			return release, nil
		case !errors.Is(err, lock.ErrHeld):
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w: %w", key, trigger.ErrConcurrentRun, err)
		}
	}
}

func (s *Service) specFor(ctx context.Context, ref automation.Ref) (*schedule.Spec, schedule.Status, error) {
	if ref.Family == schedule.FamilyWorkflow {
		w, err := s.store.GetWorkflow(ctx, ref.ID)
		if err != nil {
			return nil, "", err
		}
		if !w.Scheduled() {
			return nil, w.Status, nil
		}
		return w.Schedule, w.Status, nil
	}
	j, err := s.store.GetJob(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	return &j.Schedule, schedule.StatusActive, nil
}
