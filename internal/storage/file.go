package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
	logx "autosched/pkg/logx"
)

// fileStore keeps everything in a Memory store and makes it durable.
//
// Files:
//   - <prefix>.snapshot.json  (full state, rewritten on compaction)
//   - <prefix>.journal.jsonl  (append-only mutations since the snapshot)
//   - <prefix>.runs.jsonl     (append-only run journal)
//
// The journal is compacted into the snapshot every compactEvery writes and
// on Close.
type fileStore struct {
	*Memory
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	runsFile     *os.File

	writes       int
	compactEvery int
}

const (
	opRecord   = "record"
	opState    = "state"
	opWorkflow = "workflow"
	opJob      = "job"
)

type journalEntry struct {
	Op        string          `json:"op"`
	Key       string          `json:"key"`
	DataModel string          `json:"dm,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type snapshot struct {
	Records   map[string]map[string]rules.Record `json:"records"`
	States    map[string]schedule.State          `json:"states"`
	Workflows map[string]automation.Workflow     `json:"workflows"`
	Jobs      map[string]automation.Job          `json:"jobs"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"
	runsPath := prefix + ".runs.jsonl"

	mem := NewMemory(cfg.RunHistory)
	if err := loadSnapshot(snapPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, mem, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayRuns(runsPath, mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	rf, err := os.OpenFile(runsPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = jf.Close()
		return nil, err
	}

	return &fileStore{
		Memory:       mem,
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		runsFile:     rf,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) SaveRecord(ctx context.Context, dataModelID, recordID string, rec rules.Record) error {
	return s.write(journalEntry{Op: opRecord, Key: recordID, DataModel: dataModelID}, rec, func() error {
		return s.Memory.SaveRecord(ctx, dataModelID, recordID, rec)
	})
}

func (s *fileStore) SaveScheduleState(ctx context.Context, ref string, st schedule.State) error {
	return s.write(journalEntry{Op: opState, Key: ref}, st, func() error {
		return s.Memory.SaveScheduleState(ctx, ref, st)
	})
}

func (s *fileStore) PutWorkflow(ctx context.Context, w automation.Workflow) error {
	return s.write(journalEntry{Op: opWorkflow, Key: w.ID}, w, func() error {
		return s.Memory.PutWorkflow(ctx, w)
	})
}

func (s *fileStore) PutJob(ctx context.Context, j automation.Job) error {
	return s.write(journalEntry{Op: opJob, Key: j.Ref().String()}, j, func() error {
		return s.Memory.PutJob(ctx, j)
	})
}

func (s *fileStore) AppendRun(ctx context.Context, run automation.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runsFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.runsFile).Encode(run); err != nil {
		return err
	}
	return s.Memory.AppendRun(ctx, run)
}

// write journals e with data, then applies the change in memory.
func (s *fileStore) write(e journalEntry, data any, apply func() error) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	e.Data = b

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journalFile).Encode(e); err != nil {
		return err
	}
	if err := apply(); err != nil {
		return err
	}
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journalFile.Close())
		s.journalFile = nil
	}
	if s.runsFile != nil {
		errs = append(errs, s.runsFile.Close())
		s.runsFile = nil
	}
	errs = append(errs, s.Memory.Close())
	return errors.Join(errs...)
}

func (s *fileStore) compactLocked() error {
	m := s.Memory
	m.mu.RLock()
	snap := snapshot{
		Records:   m.records,
		States:    m.states,
		Workflows: m.workflows,
		Jobs:      m.jobs,
	}
	b, err := json.Marshal(snap)
	m.mu.RUnlock()
	if err != nil {
		return err
	}

	tmp := s.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, m *Memory) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return err
	}
	for dm, recs := range snap.Records {
		for id, rec := range recs {
			m.putRecordLocked(dm, id, rec)
		}
	}
	for k, v := range snap.States {
		m.states[k] = v
	}
	for k, v := range snap.Workflows {
		m.workflows[k] = v
	}
	for k, v := range snap.Jobs {
		m.jobs[k] = v
	}
	return nil
}

func replayJournal(path string, m *Memory, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	skipped := 0
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.Key == "" {
			skipped++
			continue
		}
		if err := applyEntry(m, e); err != nil {
			skipped++
		}
	}
	if skipped > 0 {
		log.Warn("journal entries skipped", logx.Int("count", skipped), logx.String("path", path))
	}
	return sc.Err()
}

func applyEntry(m *Memory, e journalEntry) error {
	switch e.Op {
	case opRecord:
		var rec rules.Record
		if err := json.Unmarshal(e.Data, &rec); err != nil {
			return err
		}
		m.putRecordLocked(e.DataModel, e.Key, rec)
	case opState:
		var st schedule.State
		if err := json.Unmarshal(e.Data, &st); err != nil {
			return err
		}
		m.states[e.Key] = st
	case opWorkflow:
		var w automation.Workflow
		if err := json.Unmarshal(e.Data, &w); err != nil {
			return err
		}
		m.workflows[e.Key] = w
	case opJob:
		var j automation.Job
		if err := json.Unmarshal(e.Data, &j); err != nil {
			return err
		}
		m.jobs[e.Key] = j
	default:
		return errors.New("unknown journal op " + e.Op)
	}
	return nil
}

func replayRuns(path string, m *Memory) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var r automation.Run
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.ID == "" {
			continue
		}
		m.appendRunLocked(r)
	}
	return sc.Err()
}
