package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"autosched/internal/eventbus"
	logx "autosched/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// a closed stopCh wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case qt, ok := <-queue:
			if !ok {
				return
			}
			s.inFlight.Add(1)
			s.execOne(ctx, qt)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	defer qt.state.release()

	start := time.Now()
	queueDelay := start.Sub(qt.enqueuedAt)
	if queueDelay < 0 {
		queueDelay = 0
	}
	t := qt.task

	if qt.state.canceled(qt.gen) {
		s.canceled.Add(1)
		s.log.Debug("task canceled before start", logx.String("task", t.Name), logx.String("key", t.Key))
		s.publish(eventbus.TypeTaskDropped, start, TaskEvent{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, QueueDelay: queueDelay, Error: "canceled"})
		s.record(HistoryItem{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, QueueDelay: queueDelay, Error: ErrCanceled.Error()})
		return
	}

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()
	if maxDelay > 0 && queueDelay > maxDelay {
		s.onStaleDropped(start, t, queueDelay)
		s.record(HistoryItem{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, QueueDelay: queueDelay, Error: "stale_queue_delay"})
		return
	}

	s.log.Debug("task.started", logx.String("task", t.Name), logx.Duration("queue_delay", queueDelay))
	s.publish(eventbus.TypeTaskStarted, start, TaskEvent{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, QueueDelay: queueDelay})

	runCtx := ctx
	var cancel context.CancelFunc
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	var err error
	// a panicking task is converted to an error and the worker keeps going
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		err = t.Run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, Duration: dur, QueueDelay: queueDelay}
	ev := TaskEvent{ID: t.ID, Name: t.Name, Key: t.Key, Started: start, QueueDelay: queueDelay, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else if dur >= 750*time.Millisecond {
		s.log.Info("task.completed", logx.String("task", t.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	} else {
		s.log.Debug("task.completed", logx.String("task", t.Name), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
	}
	s.publish(eventbus.TypeTaskFinished, time.Now(), ev)
	s.record(item)
}
