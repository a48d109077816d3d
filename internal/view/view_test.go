package view

import (
	"context"
	"errors"
	"testing"
	"time"

	"autosched/internal/automation"
	"autosched/internal/schedule"
	"autosched/internal/storage"
)

var t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func seed(t *testing.T) *storage.Memory {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory(0)
	daily := &schedule.Spec{Frequency: schedule.Daily}
	wfs := []automation.Workflow{
		{ID: "w-late", Name: "late", TriggerType: automation.TriggerScheduled, Status: schedule.StatusActive, Schedule: daily},
		{ID: "w-tie", Name: "tie", TriggerType: automation.TriggerScheduled, Status: schedule.StatusActive, Schedule: daily},
		{ID: "w-event", Name: "event", TriggerType: automation.TriggerEvent, Status: schedule.StatusActive},
	}
	for _, w := range wfs {
		if err := st.PutWorkflow(ctx, w); err != nil {
			t.Fatal(err)
		}
	}
	jobs := []automation.Job{
		{Family: schedule.FamilyNotebook, ID: "nb-1", Name: "report", ScheduleType: "one_time", Schedule: schedule.Spec{Frequency: schedule.Once}},
		{Family: schedule.FamilyDataSync, ID: "ds-tie", Name: "sync", ScheduleType: "monthly", Schedule: schedule.Spec{Frequency: schedule.Hourly}},
		{Family: schedule.FamilyDataSync, ID: "ds-early", Name: "sync early", ScheduleType: "hourly", Schedule: schedule.Spec{Frequency: schedule.Hourly}},
	}
	for _, j := range jobs {
		if err := st.PutJob(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	states := map[string]schedule.State{
		"workflow:w-late":    {NextRunAt: at(3 * time.Hour), Enabled: true, Status: schedule.StatusActive},
		"workflow:w-tie":     {NextRunAt: at(time.Hour), Enabled: true, Status: schedule.StatusActive},
		"data_sync:ds-tie":   {NextRunAt: at(time.Hour), Enabled: false, Status: schedule.StatusActive},
		"data_sync:ds-early": {NextRunAt: at(30 * time.Minute), LastRunAt: at(-30 * time.Minute), Enabled: true, Status: schedule.StatusActive},
		"notebook:nb-1":      {LastRunAt: at(-time.Hour), Enabled: true, Status: schedule.StatusActive},
	}
	for ref, s := range states {
		if err := st.SaveScheduleState(ctx, ref, s); err != nil {
			t.Fatal(err)
		}
	}
	return st
}

func refs(es []Entry) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.Ref)
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestListOrdersByNextRun(t *testing.T) {
	t.Parallel()
	v := New(seed(t))

	got, err := v.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{
		"data_sync:ds-early",
		"data_sync:ds-tie", // tie at +1h: data_sync sorts before workflow
		"workflow:w-tie",
		"workflow:w-late",
		"notebook:nb-1", // no next run
		"workflow:w-event",
	}
	if !equal(refs(got), want) {
		t.Fatalf("order = %v, want %v", refs(got), want)
	}
	if got[0].ScheduleType != "hourly" || got[0].LastRunAt == nil {
		t.Fatalf("job entry = %+v", got[0])
	}
	if got[5].TriggerType != string(automation.TriggerEvent) || !got[5].Enabled {
		t.Fatalf("stateless workflow entry = %+v", got[5])
	}
}

func TestListFilters(t *testing.T) {
	t.Parallel()
	v := New(seed(t))
	ctx := context.Background()
	before := t0.Add(time.Hour)

	cases := []struct {
		name string
		f    Filter
		want []string
	}{
		{"families", Filter{Families: []schedule.Family{schedule.FamilyNotebook}}, []string{"notebook:nb-1"}},
		{"scheduled only", Filter{ScheduledOnly: true, Limit: 2}, []string{"data_sync:ds-early", "data_sync:ds-tie"}},
		{"enabled only", Filter{EnabledOnly: true, ScheduledOnly: true}, []string{"data_sync:ds-early", "workflow:w-tie", "workflow:w-late"}},
		{"before", Filter{Before: &before}, []string{"data_sync:ds-early", "data_sync:ds-tie", "workflow:w-tie"}},
	}
	for _, tc := range cases {
		got, err := v.List(ctx, tc.f)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !equal(refs(got), tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, refs(got), tc.want)
		}
	}
}

type brokenSource struct{ *storage.Memory }

func (brokenSource) ListJobs(context.Context) ([]automation.Job, error) {
	return nil, errors.New("jobs unavailable")
}

func TestListPropagatesSourceErrors(t *testing.T) {
	t.Parallel()
	v := New(brokenSource{storage.NewMemory(0)})
	if _, err := v.List(context.Background(), Filter{}); err == nil {
		t.Fatalf("expected error")
	}
}
