package automation

import (
	"errors"
	"testing"

	"autosched/internal/rules"
	"autosched/internal/schedule"
)

func TestWorkflowValidate(t *testing.T) {
	t.Parallel()
	daily := &schedule.Spec{Frequency: schedule.Daily}
	sub := &EventSubscription{SourceType: "DATA_SYNC", SourceID: "sync-1"}
	tests := []struct {
		name string
		w    Workflow
		ok   bool
	}{
		{name: "scheduled", w: Workflow{ID: "w1", DataModelID: "dm", TriggerType: TriggerScheduled, Status: schedule.StatusActive, Schedule: daily}, ok: true},
		{name: "event", w: Workflow{ID: "w2", DataModelID: "dm", TriggerType: TriggerEvent, Status: schedule.StatusActive, EventSubscription: sub}, ok: true},
		{name: "manual", w: Workflow{ID: "w3", DataModelID: "dm", TriggerType: TriggerManual, Status: schedule.StatusPaused}, ok: true},
		{name: "event with schedule", w: Workflow{ID: "w4", DataModelID: "dm", TriggerType: TriggerEvent, Status: schedule.StatusActive, EventSubscription: sub, Schedule: daily}},
		{name: "scheduled without schedule", w: Workflow{ID: "w5", DataModelID: "dm", TriggerType: TriggerScheduled, Status: schedule.StatusActive}},
		{name: "missing data model", w: Workflow{ID: "w6", TriggerType: TriggerManual, Status: schedule.StatusActive}},
		{name: "bad source type", w: Workflow{ID: "w7", DataModelID: "dm", TriggerType: TriggerEvent, Status: schedule.StatusActive, EventSubscription: &EventSubscription{SourceType: "WEBHOOK", SourceID: "x"}}},
		{name: "action without target", w: Workflow{ID: "w8", DataModelID: "dm", TriggerType: TriggerManual, Status: schedule.StatusActive, Actions: []rules.Action{{Kind: rules.SetLiteral}}}},
	}
	for _, tt := range tests {
		err := tt.w.Validate()
		if tt.ok && err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", tt.name, err)
		}
	}
}

func TestSubscriptionMatches(t *testing.T) {
	t.Parallel()
	s := &EventSubscription{SourceType: "DATA_SYNC", SourceID: "sync-1"}
	if !s.Matches("data_sync", "sync-1") {
		t.Fatal("expected match")
	}
	if s.Matches("DATA_SYNC", "sync-2") {
		t.Fatal("different source id must not match")
	}
	var none *EventSubscription
	if none.Matches("DATA_SYNC", "sync-1") {
		t.Fatal("nil subscription must not match")
	}
}

func TestParseRef(t *testing.T) {
	t.Parallel()
	r, err := ParseRef("dataSync:nightly")
	if err != nil {
		t.Fatalf("ParseRef: %v", err)
	}
	if r.Family != schedule.FamilyDataSync || r.ID != "nightly" || r.String() != "data_sync:nightly" {
		t.Fatalf("ref = %+v", r)
	}
	for _, bad := range []string{"nightly", "workflow:", "pipeline:x"} {
		if _, err := ParseRef(bad); err == nil {
			t.Fatalf("ParseRef(%q) expected error", bad)
		}
	}
}
