package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/lock"
	"autosched/internal/schedule"
	"autosched/internal/trigger"
	logx "autosched/pkg/logx"
)

// BusRunner hands due jobs to whoever listens for eventbus.TypeJobDue.
type BusRunner struct {
	Bus eventbus.Bus
}

func (r BusRunner) RunJob(ctx context.Context, job automation.Job, scheduledFor time.Time) error {
	if r.Bus == nil {
		return errors.New("no job runner configured")
	}
	r.Bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobDue,
		Data: eventbus.JobDue{
			Family:       string(job.Family),
			ID:           job.ID,
			Name:         job.Name,
			ScheduledFor: scheduledFor,
		},
	})
	return nil
}

// jobTask runs a notebook or data-sync job and advances its schedule state
// with the same lastRun/nextRun rules as workflows.
func (s *Service) jobTask(ctx context.Context, ref automation.Ref, kind trigger.SignalKind, at time.Time) error {
	now := at
	if now.IsZero() {
		now = s.now()
	}
	key := ref.String()
	run := automation.Run{ID: uuid.NewString(), Ref: key, Signal: string(kind), StartedAt: now}

	release, err := s.locker.TryLock(ctx, key)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			s.log.Debug("job skipped: run in progress", logx.String("ref", key))
			return nil
		}
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer release()

	job, err := s.store.GetJob(ctx, ref)
	if err != nil {
		return fmt.Errorf("load job %s: %w", key, err)
	}
	st, err := s.store.LoadScheduleState(ctx, key)
	if errors.Is(err, automation.ErrNotFound) {
		st, err = schedule.State{Enabled: true, Status: schedule.StatusActive}, nil
	}
	if err != nil {
		return fmt.Errorf("load state %s: %w", key, err)
	}
	// the state may have moved since the poll saw it due
	if kind == trigger.Tick && !st.Due(now) {
		return nil
	}

	scheduledFor := now
	if st.NextRunAt != nil && kind == trigger.Tick {
		scheduledFor = *st.NextRunAt
	}
	runErr := s.runner.RunJob(ctx, job, scheduledFor)

	if cur, err := s.store.LoadScheduleState(ctx, key); err == nil {
		st.Enabled = cur.Enabled
		st.Status = cur.Status
	}
	last := now
	st.LastRunAt = &last
	st.NextRunAt = nil
	if next, ok := s.calc.ComputeNextRun(job.Schedule, now, &last); ok {
		st.NextRunAt = &next
	}
	saveErr := s.store.SaveScheduleState(ctx, key, st)

	run.Status = string(trigger.Applied)
	run.Reason = "dispatched to job runner"
	if err := errors.Join(runErr, saveErr); err != nil {
		run.Status = string(trigger.Failed)
		run.Reason = "job dispatch failed"
		run.Error = err.Error()
	}
	run.NextRunAt = st.NextRunAt
	run.FinishedAt = s.now()
	if run.FinishedAt.Before(run.StartedAt) {
		run.FinishedAt = run.StartedAt
	}
	if err := s.store.AppendRun(ctx, run); err != nil {
		s.log.Warn("run journal append failed", logx.String("ref", key), logx.Err(err))
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeRunFinished, Data: run})
	}

	fields := []logx.Field{logx.String("ref", key), logx.String("status", run.Status)}
	if st.NextRunAt != nil {
		fields = append(fields, logx.Time("next_run", *st.NextRunAt))
	}
	s.log.Info("job dispatched", fields...)
	if runErr != nil || saveErr != nil {
		return errors.Join(runErr, saveErr)
	}
	return nil
}
