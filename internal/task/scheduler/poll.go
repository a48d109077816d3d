package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"autosched/internal/automation"
	"autosched/internal/schedule"
	"autosched/internal/task/engine"
	"autosched/internal/trigger"
	logx "autosched/pkg/logx"
)

// Poll seeds missing schedule state and dispatches every due entry. It
// returns what it dispatched in nextRun order.
func (s *Service) Poll(ctx context.Context) []DueInfo {
	now := s.now()
	s.polls.Add(1)
	s.lastPoll.Store(now.UnixNano())

	if err := s.Reconcile(ctx, now); err != nil {
		s.log.Warn("schedule reconcile failed", logx.Err(err))
	}

	states, err := s.store.ListScheduleStates(ctx)
	if err != nil {
		s.log.Warn("listing schedule state failed", logx.Err(err))
		return nil
	}
	var due []DueInfo
	for ref, st := range states {
		if st.Due(now) {
			due = append(due, DueInfo{Ref: ref, NextRun: *st.NextRunAt})
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if !due[i].NextRun.Equal(due[j].NextRun) {
			return due[i].NextRun.Before(due[j].NextRun)
		}
		return due[i].Ref < due[j].Ref
	})

	out := due[:0]
	for _, d := range due {
		ref, err := automation.ParseRef(d.Ref)
		if err != nil {
			s.log.Warn("skipping malformed schedule ref", logx.String("ref", d.Ref), logx.Err(err))
			continue
		}
		if err := s.dispatch(ref, trigger.Signal{Kind: trigger.Tick, At: now}); err != nil {
			s.reportEnqueueError(d.Ref, err)
			continue
		}
		out = append(out, d)
	}
	if len(out) > 0 {
		s.log.Debug("poll dispatched", logx.Int("due", len(out)))
	}
	return out
}

// Reconcile gives every scheduled workflow and job a schedule state with a
// computed next run, leaving existing state untouched.
func (s *Service) Reconcile(ctx context.Context, now time.Time) error {
	var errs []error
	wfs, err := s.store.ListWorkflows(ctx)
	if err != nil {
		return err
	}
	for _, w := range wfs {
		if !w.Scheduled() {
			continue
		}
		if err := s.seed(ctx, w.Ref(), *w.Schedule, w.Status, now); err != nil {
			errs = append(errs, err)
		}
	}
	jobs, err := s.store.ListJobs(ctx)
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	for _, j := range jobs {
		if err := s.seed(ctx, j.Ref(), j.Schedule, schedule.StatusActive, now); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) seed(ctx context.Context, ref automation.Ref, spec schedule.Spec, status schedule.Status, now time.Time) error {
	_, err := s.store.LoadScheduleState(ctx, ref.String())
	if err == nil {
		return nil
	}
	if !errors.Is(err, automation.ErrNotFound) {
		return err
	}
	st := schedule.State{Enabled: true, Status: status}
	if next, ok := s.calc.PlanRun(spec, now, nil); ok {
		st.NextRunAt = &next
	}
	if err := s.store.SaveScheduleState(ctx, ref.String(), st); err != nil {
		return fmt.Errorf("seed %s: %w", ref, err)
	}
	s.log.Debug("schedule state seeded", logx.String("ref", ref.String()))
	return nil
}

// dispatch enqueues one run keyed by ref so the same automation never queues
// twice.
func (s *Service) dispatch(ref automation.Ref, sig trigger.Signal) error {
	s.mu.Lock()
	timeout := s.cfg.RunTimeout
	s.mu.Unlock()

	t := engine.Task{
		Name:    string(sig.Kind) + " " + ref.String(),
		Key:     ref.String(),
		Timeout: timeout,
	}
	if ref.Family == schedule.FamilyWorkflow {
		t.Run = func(ctx context.Context) error { return s.resolveTask(ctx, ref.ID, sig) }
	} else {
		t.Run = func(ctx context.Context) error { return s.jobTask(ctx, ref, sig.Kind, sig.At) }
	}
	if err := s.engine.Enqueue(t); err != nil {
		return err
	}
	s.dispatched.Add(1)
	return nil
}

func (s *Service) resolveTask(ctx context.Context, id string, sig trigger.Signal) error {
	w, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return fmt.Errorf("load workflow %s: %w", id, err)
	}
	out := s.res.Resolve(ctx, w, sig)
	if out.Status == trigger.Failed {
		return fmt.Errorf("workflow %s: %s: %w", id, out.Reason, out.Err)
	}
	return nil
}
