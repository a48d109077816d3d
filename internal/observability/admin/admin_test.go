package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"autosched/internal/automation"
	"autosched/internal/eventbus"
	"autosched/internal/schedule"
	"autosched/internal/storage"
	"autosched/internal/task/scheduler"
	"autosched/internal/trigger"
	"autosched/internal/view"
	logx "autosched/pkg/logx"
)

type fakeScheduler struct {
	mu        sync.Mutex
	triggered []string
	enabled   map[string]bool
}

func (f *fakeScheduler) Snapshot() scheduler.Snapshot {
	return scheduler.Snapshot{Enabled: true, Running: true, Polls: 3}
}

func (f *fakeScheduler) Trigger(_ context.Context, id string, recordIDs []string) (trigger.Outcome, error) {
	if id == "missing" {
		return trigger.Outcome{}, fmt.Errorf("load workflow %s: %w", id, automation.ErrNotFound)
	}
	f.mu.Lock()
	f.triggered = append(f.triggered, id+":"+strings.Join(recordIDs, ","))
	f.mu.Unlock()
	if id == "busy" {
		return trigger.Outcome{WorkflowID: id, Status: trigger.Idle, Err: trigger.ErrRateLimited}, nil
	}
	return trigger.Outcome{RunID: "r1", WorkflowID: id, Status: trigger.Applied, ChangedAttributeIDs: []string{"flag"}}, nil
}

func (f *fakeScheduler) RunJob(_ context.Context, ref automation.Ref) error {
	if ref.Family == schedule.FamilyWorkflow {
		return fmt.Errorf("%s is a workflow", ref)
	}
	return nil
}

func (f *fakeScheduler) SetEnabled(_ context.Context, ref automation.Ref, enabled bool) (schedule.State, error) {
	if ref.ID == "running" {
		return schedule.State{}, fmt.Errorf("%s: %w", ref, trigger.ErrConcurrentRun)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enabled == nil {
		f.enabled = map[string]bool{}
	}
	f.enabled[ref.String()] = enabled
	return schedule.State{Enabled: enabled, Status: schedule.StatusActive}, nil
}

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *fakeScheduler, *eventbus.MemBus) {
	t.Helper()
	st := storage.NewMemory(0)
	ctx := context.Background()
	next := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := st.PutJob(ctx, automation.Job{Family: schedule.FamilyNotebook, ID: "nb-1", Name: "report", ScheduleType: "hourly", Schedule: schedule.Spec{Frequency: schedule.Hourly}}); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveScheduleState(ctx, "notebook:nb-1", schedule.State{Enabled: true, Status: schedule.StatusActive, NextRunAt: &next}); err != nil {
		t.Fatal(err)
	}
	if err := st.AppendRun(ctx, automation.Run{ID: "run-1", Ref: "notebook:nb-1", Status: "APPLIED", StartedAt: next}); err != nil {
		t.Fatal(err)
	}
	fs := &fakeScheduler{}
	bus := eventbus.New()
	s := New(cfg, Deps{Scheduler: fs, View: view.New(st), Runs: st, Bus: bus}, logx.Nop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, fs, bus
}

func do(t *testing.T, method, url, body string, hdr ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestStatusAndHealth(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, Config{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz=%d", resp.StatusCode)
	}
	resp, out := do(t, http.MethodGet, srv.URL+"/status", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	sch, _ := out["scheduler"].(map[string]any)
	if sch["Polls"] != float64(3) {
		t.Fatalf("status body=%v", out)
	}
}

func TestSchedulesAndRuns(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/schedules?family=notebook&scheduled=true")
	if err != nil {
		t.Fatal(err)
	}
	var entries []view.Entry
	_ = json.NewDecoder(resp.Body).Decode(&entries)
	resp.Body.Close()
	if len(entries) != 1 || entries[0].Ref != "notebook:nb-1" {
		t.Fatalf("entries=%+v", entries)
	}

	resp, _ = do(t, http.MethodGet, srv.URL+"/schedules?family=spreadsheet", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad family status=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/runs?ref=notebook:nb-1")
	if err != nil {
		t.Fatal(err)
	}
	var runs []automation.Run
	_ = json.NewDecoder(resp.Body).Decode(&runs)
	resp.Body.Close()
	if len(runs) != 1 || runs[0].ID != "run-1" {
		t.Fatalf("runs=%+v", runs)
	}
}

func TestTriggerEndpoints(t *testing.T) {
	t.Parallel()
	srv, fs, _ := newTestServer(t, Config{})

	resp, out := do(t, http.MethodPost, srv.URL+"/workflows/wf-1/trigger", `{"recordIds":["a","b"]}`)
	if resp.StatusCode != http.StatusOK || out["status"] != string(trigger.Applied) {
		t.Fatalf("trigger=%d %v", resp.StatusCode, out)
	}
	fs.mu.Lock()
	got := append([]string(nil), fs.triggered...)
	fs.mu.Unlock()
	if len(got) != 1 || got[0] != "wf-1:a,b" {
		t.Fatalf("triggered=%v", got)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/workflows/wf-2/trigger", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty body status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/workflows/missing/trigger", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/workflows/busy/trigger", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("rate limited status=%d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/jobs/data_sync:ds-1/run", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run job status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/jobs/workflow:wf-1/run", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("run workflow as job status=%d", resp.StatusCode)
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/automations/notebook:nb-1/disable", "")
	fs.mu.Lock()
	en, seen := fs.enabled["notebook:nb-1"]
	fs.mu.Unlock()
	if resp.StatusCode != http.StatusOK || !seen || en {
		t.Fatalf("disable status=%d seen=%v enabled=%v", resp.StatusCode, seen, en)
	}
	resp, _ = do(t, http.MethodPost, srv.URL+"/automations/workflow:running/disable", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("disable during run status=%d", resp.StatusCode)
	}
}

func TestSyncCompletedPublishes(t *testing.T) {
	t.Parallel()
	srv, _, bus := newTestServer(t, Config{})
	ch, unsub := bus.Subscribe(1, eventbus.TypeSyncCompleted)
	defer unsub()

	resp, _ := do(t, http.MethodPost, srv.URL+"/events/sync-completed", `{"sourceId":"sync-1","recordIds":["r1"]}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	select {
	case ev := <-ch:
		sc := ev.Data.(eventbus.SyncCompleted)
		if sc.SourceID != "sync-1" || sc.CompletedAt.IsZero() {
			t.Fatalf("event=%+v", sc)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}

	resp, _ = do(t, http.MethodPost, srv.URL+"/events/sync-completed", `{"recordIds":["r1"]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing sourceId status=%d", resp.StatusCode)
	}
}

func TestTokenAuth(t *testing.T) {
	t.Parallel()
	srv, _, _ := newTestServer(t, Config{Token: "s3cret", Pprof: true})

	resp, _ := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz needs no token, got %d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/status", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/status?token=wrong", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/status", "", "Authorization", "Bearer s3cret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bearer status=%d", resp.StatusCode)
	}
	resp, _ = do(t, http.MethodGet, srv.URL+"/debug/pprof/?token=s3cret", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pprof status=%d", resp.StatusCode)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	if isLoopbackAddr(":7070") || isLoopbackAddr("0.0.0.0:7070") {
		t.Fatalf("wildcard treated as loopback")
	}
	if !isLoopbackAddr("127.0.0.1:7070") || !isLoopbackAddr("localhost:1") || !isLoopbackAddr("[::1]:1") {
		t.Fatalf("loopback not recognized")
	}
}

func TestStartStopServes(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, Deps{Scheduler: &fakeScheduler{}}, logx.Nop())
	ctx := context.Background()
	s.Start(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("server never bound")
		}
		time.Sleep(10 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	s.Stop(stopCtx)
	if s.Addr() != "" {
		t.Fatalf("addr still set after stop")
	}
}
