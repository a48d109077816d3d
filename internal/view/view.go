// Package view merges workflows, notebook jobs and data-sync jobs into one
// schedule listing ordered by next run. It is display-only and reads state
// without taking automation locks.
package view

import (
	"context"
	"errors"
	"sort"
	"time"

	"autosched/internal/automation"
	"autosched/internal/schedule"
)

// Source is what the view reads.
type Source interface {
	ListWorkflows(ctx context.Context) ([]automation.Workflow, error)
	ListJobs(ctx context.Context) ([]automation.Job, error)
	ListScheduleStates(ctx context.Context) (map[string]schedule.State, error)
}

// Entry is one row of the unified schedule.
type Entry struct {
	Ref          string             `json:"ref"`
	Family       schedule.Family    `json:"family"`
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Frequency    schedule.Frequency `json:"frequency,omitempty"`
	ScheduleType string             `json:"scheduleType,omitempty"` // jobs only, as written
	TriggerType  string             `json:"triggerType,omitempty"`  // workflows only
	Enabled      bool               `json:"enabled"`
	Status       schedule.Status    `json:"status"`
	LastRunAt    *time.Time         `json:"lastRunAt,omitempty"`
	NextRunAt    *time.Time         `json:"nextRunAt,omitempty"`
}

// Filter narrows List. The zero value lists everything.
type Filter struct {
	Families []schedule.Family
	// ScheduledOnly drops entries without a next run.
	ScheduledOnly bool
	EnabledOnly   bool
	// Before keeps entries whose next run is at or before Before.
	Before *time.Time
	Limit  int
}

type Service struct {
	src Source
}

func New(src Source) *Service { return &Service{src: src} }

// List returns entries ordered by next run ascending. Entries without a next
// run come last; ties break by family then id.
func (s *Service) List(ctx context.Context, f Filter) ([]Entry, error) {
	states, err := s.src.ListScheduleStates(ctx)
	if err != nil {
		return nil, err
	}
	wfs, werr := s.src.ListWorkflows(ctx)
	jobs, jerr := s.src.ListJobs(ctx)
	if err := errors.Join(werr, jerr); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(wfs)+len(jobs))
	for _, w := range wfs {
		e := Entry{
			Ref:         w.Ref().String(),
			Family:      schedule.FamilyWorkflow,
			ID:          w.ID,
			Name:        w.Name,
			TriggerType: string(w.TriggerType),
			Enabled:     true,
			Status:      w.Status,
		}
		if w.Schedule != nil {
			e.Frequency = w.Schedule.Frequency
		}
		entries = append(entries, withState(e, states))
	}
	for _, j := range jobs {
		e := Entry{
			Ref:          j.Ref().String(),
			Family:       j.Family,
			ID:           j.ID,
			Name:         j.Name,
			Frequency:    j.Schedule.Frequency,
			ScheduleType: j.ScheduleType,
			Enabled:      true,
			Status:       schedule.StatusActive,
		}
		entries = append(entries, withState(e, states))
	}

	out := entries[:0]
	for _, e := range entries {
		if f.keep(e) {
			out = append(out, e)
		}
	}
	Sort(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func withState(e Entry, states map[string]schedule.State) Entry {
	st, ok := states[e.Ref]
	if !ok {
		return e
	}
	e.Enabled = st.Enabled
	if st.Status != "" {
		e.Status = st.Status
	}
	e.LastRunAt = st.LastRunAt
	e.NextRunAt = st.NextRunAt
	return e
}

func (f Filter) keep(e Entry) bool {
	if len(f.Families) > 0 {
		found := false
		for _, fam := range f.Families {
			if fam == e.Family {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ScheduledOnly && e.NextRunAt == nil {
		return false
	}
	if f.EnabledOnly && !e.Enabled {
		return false
	}
	if f.Before != nil && (e.NextRunAt == nil || e.NextRunAt.After(*f.Before)) {
		return false
	}
	return true
}

// Sort orders entries the way List does.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.NextRunAt != nil && b.NextRunAt == nil:
			return true
		case a.NextRunAt == nil && b.NextRunAt != nil:
			return false
		case a.NextRunAt != nil && !a.NextRunAt.Equal(*b.NextRunAt):
			return a.NextRunAt.Before(*b.NextRunAt)
		}
		if a.Family != b.Family {
			return a.Family < b.Family
		}
		return a.ID < b.ID
	})
}
