package scheduler

import "time"

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	c := s.c
	id := s.entryID
	s.mu.Unlock()

	every := cfg.PollInterval
	if every <= 0 {
		every = defaultPollInterval
	}
	snap := Snapshot{
		Enabled:      cfg.Enabled,
		Running:      c != nil,
		PollInterval: every,
		Polls:        s.polls.Load(),
		Dispatched:   s.dispatched.Load(),
	}
	if ns := s.lastPoll.Load(); ns != 0 {
		snap.LastPoll = time.Unix(0, ns)
	}
	if c != nil && id != 0 {
		snap.NextPoll = c.Entry(id).Next
	}
	if s.engine != nil {
		snap.Engine = s.engine.Snapshot()
	}
	return snap
}
