package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNextRun(t *testing.T) {
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"next-run", "daily", "--at", "09:30", "--now", "2024-03-10T10:00:00Z"}, "DAILY: 2024-03-11T09:30:00Z"},
		{[]string{"next-run", "monthly", "--family", "data_sync", "--now", "2024-03-10T10:20:00Z"}, "HOURLY: 2024-03-10T11:00:00Z"},
		{[]string{"next-run", "one_time", "--family", "notebook"}, "ONCE: never"},
		{[]string{"next-run", "custom", "--family", "data_sync", "--cron", "*/15 * * * *", "--now", "2024-03-10T10:20:00Z", "--count", "2"},
			"CRON: 2024-03-10T10:30:00Z\nCRON: 2024-03-10T10:45:00Z"},
	}
	for _, tc := range cases {
		out, err := execute(t, tc.args...)
		if err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if strings.TrimSpace(out) != tc.want {
			t.Fatalf("%v:\n got %q\nwant %q", tc.args, out, tc.want)
		}
	}
}

func TestNextRunRejectsUnknownType(t *testing.T) {
	if _, err := execute(t, "next-run", "fortnightly"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := execute(t, "next-run", "daily", "--family", "spreadsheet"); err == nil {
		t.Fatalf("expected family error")
	}
}

func TestNormalize(t *testing.T) {
	out, err := execute(t, "normalize", "--family", "data_sync", "monthly", "fortnightly")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "monthly\tHOURLY\n") {
		t.Fatalf("out=%q", out)
	}
	if !strings.Contains(out, "fortnightly\tfortnightly (unrecognized, passed through)") {
		t.Fatalf("out=%q", out)
	}
}

func TestSchedulesAndTrigger(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(catalog, []byte(`
workflows:
  - id: wf-1
    name: Nightly cleanup
    data_model_id: tickets
    trigger_type: scheduled
    schedule: {frequency: daily, time: "02:00"}
    actions:
      - {target_attribute_id: touched, kind: set_literal, value: true}
notebooks:
  - {id: nb-1, name: Report, schedule_type: hourly}
`), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := filepath.Join(dir, "autosched.yaml")
	if err := os.WriteFile(cfg, []byte(`
logging: {level: error}
scheduler: {enabled: true}
storage: {driver: file, path: `+filepath.Join(dir, "state")+`}
catalog: {path: `+catalog+`}
`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfg, "schedules")
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	for _, want := range []string{"workflow:wf-1", "notebook:nb-1", "NEXT RUN"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	out, err = execute(t, "--config", cfg, "trigger", "wf-1")
	if err != nil {
		t.Fatalf("trigger: %v (%s)", err, out)
	}
	if !strings.HasPrefix(out, "run ") {
		t.Fatalf("out=%q", out)
	}

	out, err = execute(t, "--config", cfg, "runs", "workflow:wf-1", "--json")
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if !strings.Contains(out, `"ref": "workflow:wf-1"`) {
		t.Fatalf("run not journaled:\n%s", out)
	}

	out, err = execute(t, "--config", cfg, "disable", "notebook:nb-1")
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if !strings.Contains(out, "enabled=false") {
		t.Fatalf("out=%q", out)
	}
}

func TestNormalizeHonorsConfigOverrides(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "autosched.json")
	if err := os.WriteFile(cfg, []byte(`{"normalizer": {"overrides": {"data_sync": {"monthly": "MONTHLY"}}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, err := execute(t, "--config", cfg, "normalize", "--family", "data_sync", "monthly")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "monthly\tMONTHLY" {
		t.Fatalf("out=%q", out)
	}
}
