package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
	logx "autosched/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListRecordIDs(ctx context.Context, dataModelID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM records WHERE data_model_id = ? ORDER BY record_id`, dataModelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqliteStore) LoadRecord(ctx context.Context, dataModelID, recordID string) (rules.Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE data_model_id = ? AND record_id = ?`, dataModelID, recordID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", dataModelID, recordID, automation.ErrRecordNotFound)
	}
	if err != nil {
		return nil, err
	}
	rec := rules.Record{}
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record %s/%s: %w", dataModelID, recordID, err)
	}
	return rec, nil
}

func (s *sqliteStore) SaveRecord(ctx context.Context, dataModelID, recordID string, rec rules.Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records(data_model_id, record_id, data, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(data_model_id, record_id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		dataModelID, recordID, string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) LoadScheduleState(ctx context.Context, ref string) (schedule.State, error) {
	var (
		last, next sql.NullInt64
		enabled    int
		status     string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_run_at, next_run_at, enabled, status FROM schedule_states WHERE ref = ?`, ref,
	).Scan(&last, &next, &enabled, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.State{}, fmt.Errorf("schedule state %s: %w", ref, automation.ErrNotFound)
	}
	if err != nil {
		return schedule.State{}, err
	}
	return scanState(last, next, enabled, status), nil
}

func (s *sqliteStore) SaveScheduleState(ctx context.Context, ref string, st schedule.State) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedule_states(ref, last_run_at, next_run_at, enabled, status) VALUES(?,?,?,?,?)
		 ON CONFLICT(ref) DO UPDATE SET last_run_at=excluded.last_run_at, next_run_at=excluded.next_run_at,
		   enabled=excluded.enabled, status=excluded.status`,
		ref, nullMillis(st.LastRunAt), nullMillis(st.NextRunAt), boolInt(st.Enabled), string(st.Status),
	)
	return err
}

func (s *sqliteStore) ListScheduleStates(ctx context.Context) (map[string]schedule.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ref, last_run_at, next_run_at, enabled, status FROM schedule_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]schedule.State{}
	for rows.Next() {
		var (
			ref        string
			last, next sql.NullInt64
			enabled    int
			status     string
		)
		if err := rows.Scan(&ref, &last, &next, &enabled, &status); err != nil {
			return nil, err
		}
		out[ref] = scanState(last, next, enabled, status)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutWorkflow(ctx context.Context, w automation.Workflow) error {
	b, err := json.Marshal(w)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows(id, data) VALUES(?,?) ON CONFLICT(id) DO UPDATE SET data=excluded.data`,
		w.ID, string(b))
	return err
}

func (s *sqliteStore) GetWorkflow(ctx context.Context, id string) (automation.Workflow, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM workflows WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.Workflow{}, fmt.Errorf("workflow %s: %w", id, automation.ErrNotFound)
	}
	if err != nil {
		return automation.Workflow{}, err
	}
	var w automation.Workflow
	err = json.Unmarshal([]byte(data), &w)
	return w, err
}

func (s *sqliteStore) ListWorkflows(ctx context.Context) ([]automation.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM workflows ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []automation.Workflow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var w automation.Workflow
		if err := json.Unmarshal([]byte(data), &w); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutJob(ctx context.Context, j automation.Job) error {
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs(ref, family, id, data) VALUES(?,?,?,?) ON CONFLICT(ref) DO UPDATE SET data=excluded.data`,
		j.Ref().String(), string(j.Family), j.ID, string(b))
	return err
}

func (s *sqliteStore) GetJob(ctx context.Context, ref automation.Ref) (automation.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE ref = ?`, ref.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return automation.Job{}, fmt.Errorf("job %s: %w", ref, automation.ErrNotFound)
	}
	if err != nil {
		return automation.Job{}, err
	}
	var j automation.Job
	err = json.Unmarshal([]byte(data), &j)
	return j, err
}

func (s *sqliteStore) ListJobs(ctx context.Context) ([]automation.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM jobs ORDER BY ref`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []automation.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var j automation.Job
		if err := json.Unmarshal([]byte(data), &j); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendRun(ctx context.Context, run automation.Run) error {
	changed, err := json.Marshal(run.Changed)
	if err != nil {
		return err
	}
	var next any
	if run.NextRunAt != nil {
		next = run.NextRunAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs(id, ref, signal, status, reason, err, changed, records, started_at, finished_at, next_run_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.Ref, run.Signal, run.Status, nullStr(run.Reason), nullStr(run.Error), string(changed),
		run.Records, run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano), next,
	)
	return err
}

func (s *sqliteStore) ListRuns(ctx context.Context, ref string, limit int) ([]automation.Run, error) {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	q := `SELECT id, ref, signal, status, reason, err, changed, records, started_at, finished_at, next_run_at FROM runs`
	args := []any{}
	if ref != "" {
		q += ` WHERE ref = ?`
		args = append(args, ref)
	}
	q += ` ORDER BY seq DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []automation.Run
	for rows.Next() {
		var (
			r                 automation.Run
			reason, errStr    sql.NullString
			changed, next     sql.NullString
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Ref, &r.Signal, &r.Status, &reason, &errStr, &changed, &r.Records, &started, &finished, &next); err != nil {
			return nil, err
		}
		r.Reason = reason.String
		r.Error = errStr.String
		if changed.Valid && changed.String != "" && changed.String != "null" {
			_ = json.Unmarshal([]byte(changed.String), &r.Changed)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		if next.Valid {
			if t, err := time.Parse(time.RFC3339Nano, next.String); err == nil {
				r.NextRunAt = &t
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanState(last, next sql.NullInt64, enabled int, status string) schedule.State {
	st := schedule.State{Enabled: enabled != 0, Status: schedule.Status(status)}
	if last.Valid {
		t := time.UnixMilli(last.Int64).UTC()
		st.LastRunAt = &t
	}
	if next.Valid {
		t := time.UnixMilli(next.Int64).UTC()
		st.NextRunAt = &t
	}
	return st
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
