package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"autosched/internal/automation"
	"autosched/internal/rules"
	"autosched/internal/schedule"
	"autosched/internal/storage"
	logx "autosched/pkg/logx"
)

const yamlCatalog = `
workflows:
  - id: escalate
    name: Escalate stale tickets
    data_model_id: tickets
    trigger_type: scheduled
    schedule:
      frequency: daily
      time: "09:30"
    conditions:
      - attribute_id: status
        operator: equals
        value: open
        order: 0
      - attributeId: age
        operator: greater_than
        value: 7
        logical_connector: and
        order: 1
    actions:
      - target_attribute_id: priority
        kind: set_literal
        value: {level: high, Notify_Team: true}
        order: 0
  - id: on-sync
    data_model_id: tickets
    trigger_type: event-based
    event_subscription:
      source_id: sync-1
    actions:
      - target_attribute_id: synced
        kind: set_literal
        value: true
notebooks:
  - id: nb-1
    name: weekly report
    schedule_type: one_time
    schedule:
      start_at: 2024-01-05T08:00:00Z
data_syncs:
  - id: ds-1
    schedule_type: monthly
  - id: ds-2
    schedule_type: custom
    schedule:
      cron: "*/15 * * * *"
  - id: ds-3
    schedule_type: fortnightly
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLNormalizesKeysAndTypes(t *testing.T) {
	t.Parallel()

	c, err := Load(writeFile(t, "catalog.yaml", yamlCatalog), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Workflows) != 2 || len(c.Jobs) != 4 {
		t.Fatalf("got %d workflows, %d jobs", len(c.Workflows), len(c.Jobs))
	}

	w := c.Workflows[0]
	if w.DataModelID != "tickets" || w.TriggerType != automation.TriggerScheduled || w.Status != schedule.StatusActive {
		t.Fatalf("workflow = %+v", w)
	}
	if w.Schedule.Frequency != schedule.Daily || *w.Schedule.Params.Hour != 9 || *w.Schedule.Params.Minute != 30 {
		t.Fatalf("schedule = %+v", w.Schedule)
	}
	if w.Conditions[1].Operator != rules.GreaterThan || w.Conditions[1].Connector != rules.And || w.Conditions[1].AttributeID != "age" {
		t.Fatalf("condition = %+v", w.Conditions[1])
	}
	if w.Actions[0].Kind != rules.SetLiteral {
		t.Fatalf("action = %+v", w.Actions[0])
	}
	val, ok := w.Actions[0].Value.(map[string]any)
	if !ok || val["Notify_Team"] != true {
		t.Fatalf("action value keys must be kept as written: %#v", w.Actions[0].Value)
	}

	ev := c.Workflows[1]
	if ev.TriggerType != automation.TriggerEvent || ev.EventSubscription.SourceType != automation.SourceDataSync {
		t.Fatalf("event workflow = %+v", ev)
	}

	freqs := map[string]schedule.Frequency{}
	for _, j := range c.Jobs {
		freqs[j.Ref().String()] = j.Schedule.Frequency
	}
	want := map[string]schedule.Frequency{
		"notebook:nb-1":  schedule.Once,
		"data_sync:ds-1": schedule.Hourly,
		"data_sync:ds-2": schedule.Cron,
		"data_sync:ds-3": "fortnightly",
	}
	for ref, f := range want {
		if freqs[ref] != f {
			t.Fatalf("%s frequency = %q, want %q", ref, freqs[ref], f)
		}
	}
	if len(c.Warnings) != 1 || !strings.Contains(c.Warnings[0], "fortnightly") {
		t.Fatalf("warnings = %v", c.Warnings)
	}
	if c.Jobs[0].ScheduleType != "one_time" {
		t.Fatalf("raw schedule type not kept: %+v", c.Jobs[0])
	}
}

func TestParseJSONCamelCase(t *testing.T) {
	t.Parallel()

	body := `{"workflows":[{"id":"w","dataModelId":"m","triggerType":"MANUAL","status":"PAUSED"}],
"dataSyncs":[{"id":"d","scheduleType":"weekly","schedule":{"dayOfWeek":"fri","hour":6,"interval":{"value":2,"unit":"hours"}}}]}`
	c, err := Parse([]byte(body), "json", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Workflows[0].Status != schedule.StatusPaused {
		t.Fatalf("status = %q", c.Workflows[0].Status)
	}
	p := c.Jobs[0].Schedule.Params
	if *p.DayOfWeek != int(time.Friday) || *p.Hour != 6 || p.Interval.Value != 2 || p.Interval.Unit != schedule.Hours {
		t.Fatalf("params = %+v", p)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"unknown field", `{"workflows":[{"id":"w","dataModelId":"m","triggerType":"MANUAL","colour":"red"}]}`},
		{"invalid workflow", `{"workflows":[{"id":"w","triggerType":"SCHEDULED"}]}`},
		{"bad time", `{"dataSyncs":[{"id":"d","scheduleType":"daily","schedule":{"time":"25:00"}}]}`},
		{"bad interval", `{"notebooks":[{"id":"n","scheduleType":"interval","schedule":{"interval":"30s"}}]}`},
		{"cron without expression", `{"notebooks":[{"id":"n","scheduleType":"custom"}]}`},
		{"missing type", `{"notebooks":[{"id":"n"}]}`},
		{"duplicate", `{"notebooks":[{"id":"n","scheduleType":"daily"},{"id":"n","scheduleType":"hourly"}]}`},
	}
	for _, tc := range cases {
		if _, err := Parse([]byte(tc.body), "json", nil); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNormalizerOverridesApply(t *testing.T) {
	t.Parallel()

	n, err := schedule.NewNormalizer(map[string]map[string]string{"data_sync": {"monthly": "MONTHLY"}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := Parse([]byte(`{"dataSyncs":[{"id":"d","scheduleType":"monthly"}]}`), "json", n)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.Jobs[0].Schedule.Frequency != schedule.Monthly {
		t.Fatalf("frequency = %q", c.Jobs[0].Schedule.Frequency)
	}
}

func TestApplySeedsAndPreservesState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := storage.NewMemory(0)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	c, err := Parse([]byte(yamlCatalog), "yaml", nil)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := Apply(ctx, store, c, schedule.Calculator{Cron: schedule.NewRobfigCron()}, now, logx.Nop())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if rep.Workflows != 2 || rep.Jobs != 4 || len(rep.Seeded) != 6 {
		t.Fatalf("report = %+v", rep)
	}

	st, _ := store.LoadScheduleState(ctx, "workflow:escalate")
	if want := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC); st.NextRunAt == nil || !st.NextRunAt.Equal(want) {
		t.Fatalf("escalate next = %v, want %v", st.NextRunAt, want)
	}
	nb, _ := store.LoadScheduleState(ctx, "notebook:nb-1")
	if want := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC); nb.NextRunAt == nil || !nb.NextRunAt.Equal(want) {
		t.Fatalf("notebook next = %v, want %v", nb.NextRunAt, want)
	}
	ev, _ := store.LoadScheduleState(ctx, "workflow:on-sync")
	if ev.NextRunAt != nil || !ev.Enabled {
		t.Fatalf("event workflow state = %+v", ev)
	}
	cr, _ := store.LoadScheduleState(ctx, "data_sync:ds-2")
	if want := now.Add(15 * time.Minute); cr.NextRunAt == nil || !cr.NextRunAt.Equal(want) {
		t.Fatalf("cron next = %v, want %v", cr.NextRunAt, want)
	}
	unk, _ := store.LoadScheduleState(ctx, "data_sync:ds-3")
	if unk.NextRunAt != nil {
		t.Fatalf("unrecognized frequency must not schedule: %v", unk.NextRunAt)
	}

	// reapplying later leaves pending runs alone
	rep, err = Apply(ctx, store, c, schedule.Calculator{Cron: schedule.NewRobfigCron()}, now.Add(2*time.Hour), logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Seeded) != 0 || len(rep.Rescheduled) != 0 {
		t.Fatalf("second report = %+v", rep)
	}
	again, _ := store.LoadScheduleState(ctx, "data_sync:ds-2")
	if !again.NextRunAt.Equal(*cr.NextRunAt) {
		t.Fatalf("next run moved on reapply: %v", again.NextRunAt)
	}

	// a schedule edit recomputes
	c.Jobs[2].Schedule.Params.Cron = "0 * * * *"
	rep, _ = Apply(ctx, store, c, schedule.Calculator{Cron: schedule.NewRobfigCron()}, now, logx.Nop())
	if len(rep.Rescheduled) != 1 || rep.Rescheduled[0] != "data_sync:ds-2" {
		t.Fatalf("rescheduled = %v", rep.Rescheduled)
	}
}
