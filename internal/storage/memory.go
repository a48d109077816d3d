package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
)

// Memory is the in-process Store. The file driver layers persistence on top.
type Memory struct {
	mu        sync.RWMutex
	records   map[string]map[string]rules.Record // data model -> record id -> attrs
	states    map[string]schedule.State
	workflows map[string]automation.Workflow
	jobs      map[string]automation.Job // keyed by Ref.String()
	runs      []automation.Run          // oldest first
	maxRuns   int
	closed    bool
}

func NewMemory(runHistory int) *Memory {
	if runHistory <= 0 {
		runHistory = defaultRunHistory
	}
	return &Memory{
		records:   map[string]map[string]rules.Record{},
		states:    map[string]schedule.State{},
		workflows: map[string]automation.Workflow{},
		jobs:      map[string]automation.Job{},
		maxRuns:   runHistory,
	}
}

func (m *Memory) ListRecordIDs(ctx context.Context, dataModelID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	ids := make([]string, 0, len(m.records[dataModelID]))
	for id := range m.records[dataModelID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) LoadRecord(ctx context.Context, dataModelID, recordID string) (rules.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	rec, ok := m.records[dataModelID][recordID]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", dataModelID, recordID, automation.ErrRecordNotFound)
	}
	return rec.Clone(), nil
}

func (m *Memory) SaveRecord(ctx context.Context, dataModelID, recordID string, rec rules.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.putRecordLocked(dataModelID, recordID, rec)
	return nil
}

func (m *Memory) putRecordLocked(dataModelID, recordID string, rec rules.Record) {
	dm := m.records[dataModelID]
	if dm == nil {
		dm = map[string]rules.Record{}
		m.records[dataModelID] = dm
	}
	dm[recordID] = rec.Clone()
}

func (m *Memory) LoadScheduleState(ctx context.Context, ref string) (schedule.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return schedule.State{}, ErrClosed
	}
	st, ok := m.states[ref]
	if !ok {
		return schedule.State{}, fmt.Errorf("schedule state %s: %w", ref, automation.ErrNotFound)
	}
	return copyState(st), nil
}

func (m *Memory) SaveScheduleState(ctx context.Context, ref string, st schedule.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.states[ref] = copyState(st)
	return nil
}

func (m *Memory) ListScheduleStates(ctx context.Context) (map[string]schedule.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make(map[string]schedule.State, len(m.states))
	for k, v := range m.states {
		out[k] = copyState(v)
	}
	return out, nil
}

func (m *Memory) PutWorkflow(ctx context.Context, w automation.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.workflows[w.ID] = copyWorkflow(w)
	return nil
}

func (m *Memory) GetWorkflow(ctx context.Context, id string) (automation.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return automation.Workflow{}, ErrClosed
	}
	w, ok := m.workflows[id]
	if !ok {
		return automation.Workflow{}, fmt.Errorf("workflow %s: %w", id, automation.ErrNotFound)
	}
	return copyWorkflow(w), nil
}

func (m *Memory) ListWorkflows(ctx context.Context) ([]automation.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]automation.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		out = append(out, copyWorkflow(w))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutJob(ctx context.Context, j automation.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.jobs[j.Ref().String()] = j
	return nil
}

func (m *Memory) GetJob(ctx context.Context, ref automation.Ref) (automation.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return automation.Job{}, ErrClosed
	}
	j, ok := m.jobs[ref.String()]
	if !ok {
		return automation.Job{}, fmt.Errorf("job %s: %w", ref, automation.ErrNotFound)
	}
	return j, nil
}

func (m *Memory) ListJobs(ctx context.Context) ([]automation.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]automation.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Ref().String() < out[k].Ref().String() })
	return out, nil
}

func (m *Memory) AppendRun(ctx context.Context, run automation.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.appendRunLocked(run)
	return nil
}

func (m *Memory) appendRunLocked(run automation.Run) {
	m.runs = append(m.runs, run)
	if over := len(m.runs) - m.maxRuns; over > 0 {
		m.runs = append([]automation.Run(nil), m.runs[over:]...)
	}
}

func (m *Memory) ListRuns(ctx context.Context, ref string, limit int) ([]automation.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []automation.Run
	for i := len(m.runs) - 1; i >= 0; i-- {
		if ref != "" && m.runs[i].Ref != ref {
			continue
		}
		out = append(out, m.runs[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyState(st schedule.State) schedule.State {
	if st.LastRunAt != nil {
		t := *st.LastRunAt
		st.LastRunAt = &t
	}
	if st.NextRunAt != nil {
		t := *st.NextRunAt
		st.NextRunAt = &t
	}
	return st
}

func copyWorkflow(w automation.Workflow) automation.Workflow {
	w.Conditions = append([]rules.Condition(nil), w.Conditions...)
	w.Actions = append([]rules.Action(nil), w.Actions...)
	if w.Schedule != nil {
		s := *w.Schedule
		w.Schedule = &s
	}
	if w.EventSubscription != nil {
		e := *w.EventSubscription
		w.EventSubscription = &e
	}
	return w
}
