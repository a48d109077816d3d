package scheduler

import (
	"errors"
	"time"

	"autosched/internal/task/engine"
	logx "autosched/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(ref string, err error) {
	if err == nil {
		return
	}
	// a run for this ref is already queued or running
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("dispatch skipped", logx.String("ref", ref), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[ref]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[ref] = now
	s.enqMu.Unlock()

	s.log.Warn("dispatch failed to enqueue task", logx.String("ref", ref), logx.Err(err))
}
