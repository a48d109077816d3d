package schedule

import (
	"testing"
	"time"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextRun(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		freq   Frequency
		params Params
		now    string
		want   string // empty => no next run
	}{
		{name: "once never fires", freq: Once, now: "2024-01-01T10:00:00Z"},
		{name: "hourly top of next hour", freq: Hourly, now: "2024-01-01T10:30:00Z", want: "2024-01-01T11:00:00Z"},
		{name: "hourly exactly on the hour", freq: Hourly, now: "2024-01-01T10:00:00Z", want: "2024-01-01T11:00:00Z"},
		{name: "daily default rolls to tomorrow", freq: Daily, now: "2024-01-01T10:00:00Z", want: "2024-01-02T09:00:00Z"},
		{name: "daily later today", freq: Daily, params: Params{Hour: Int(18), Minute: Int(30)}, now: "2024-01-01T10:00:00Z", want: "2024-01-01T18:30:00Z"},
		{name: "daily equal to now rolls", freq: Daily, now: "2024-01-01T09:00:00Z", want: "2024-01-02T09:00:00Z"},
		{name: "weekly monday before slot", freq: Weekly, params: Params{DayOfWeek: Int(1)}, now: "2024-01-01T08:00:00Z", want: "2024-01-01T09:00:00Z"},
		{name: "weekly monday after slot", freq: Weekly, now: "2024-01-01T10:00:00Z", want: "2024-01-08T09:00:00Z"},
		{name: "weekly friday", freq: Weekly, params: Params{DayOfWeek: Int(5), Hour: Int(17)}, now: "2024-01-01T10:00:00Z", want: "2024-01-05T17:00:00Z"},
		{name: "weekly sunday wraps", freq: Weekly, params: Params{DayOfWeek: Int(0)}, now: "2024-01-06T10:00:00Z", want: "2024-01-07T09:00:00Z"},
		{name: "monthly default next month", freq: Monthly, now: "2024-01-15T10:00:00Z", want: "2024-02-01T09:00:00Z"},
		{name: "monthly later this month", freq: Monthly, params: Params{DayOfMonth: Int(20)}, now: "2024-01-15T10:00:00Z", want: "2024-01-20T09:00:00Z"},
		{name: "monthly clamps to leap day", freq: Monthly, params: Params{DayOfMonth: Int(31)}, now: "2024-02-10T10:00:00Z", want: "2024-02-29T09:00:00Z"},
		{name: "monthly clamps after rollover", freq: Monthly, params: Params{DayOfMonth: Int(31)}, now: "2024-01-31T10:00:00Z", want: "2024-02-29T09:00:00Z"},
		{name: "monthly december rolls year", freq: Monthly, now: "2024-12-05T10:00:00Z", want: "2025-01-01T09:00:00Z"},
		{name: "interval default", freq: Interval, now: "2024-01-01T10:00:00Z", want: "2024-01-01T11:00:00Z"},
		{name: "interval minutes", freq: Interval, params: Params{Interval: &Every{Value: 15, Unit: Minutes}}, now: "2024-01-01T10:00:00Z", want: "2024-01-01T10:15:00Z"},
		{name: "interval hours", freq: Interval, params: Params{Interval: &Every{Value: 2, Unit: Hours}}, now: "2024-01-01T10:00:00Z", want: "2024-01-01T12:00:00Z"},
		{name: "interval bad unit uses default", freq: Interval, params: Params{Interval: &Every{Value: 2, Unit: "days"}}, now: "2024-01-01T10:00:00Z", want: "2024-01-01T11:00:00Z"},
		{name: "interval overflowing value uses default", freq: Interval, params: Params{Interval: &Every{Value: 3_000_000, Unit: Hours}}, now: "2024-01-01T10:00:00Z", want: "2024-01-01T11:00:00Z"},
		{name: "out of range hour uses default", freq: Daily, params: Params{Hour: Int(42)}, now: "2024-01-01T08:00:00Z", want: "2024-01-01T09:00:00Z"},
		{name: "cron without strategy", freq: Cron, params: Params{Cron: "0 * * * *"}, now: "2024-01-01T10:00:00Z"},
		{name: "unknown frequency", freq: "every_full_moon", now: "2024-01-01T10:00:00Z"},
	}

	var c Calculator
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := c.NextRun(tt.freq, tt.params, "", at(tt.now), nil)
			if tt.want == "" {
				if ok {
					t.Fatalf("NextRun = %v, want none", got)
				}
				return
			}
			if !ok {
				t.Fatalf("NextRun = none, want %s", tt.want)
			}
			if !got.Equal(at(tt.want)) {
				t.Fatalf("NextRun = %v, want %s", got, tt.want)
			}
		})
	}
}

func TestNextRunForwardProgressAndIdempotence(t *testing.T) {
	t.Parallel()
	var c Calculator
	freqs := []Frequency{Hourly, Daily, Weekly, Monthly, Interval}
	start := at("2023-12-28T00:00:00Z")
	for _, f := range freqs {
		for i := 0; i < 24*40; i += 7 {
			now := start.Add(time.Duration(i) * time.Hour).Add(13 * time.Minute)
			p := Params{DayOfMonth: Int(31), DayOfWeek: Int(3)}
			a, ok := c.NextRun(f, p, "", now, nil)
			if !ok {
				t.Fatalf("%s at %v: no next run", f, now)
			}
			if !a.After(now) {
				t.Fatalf("%s at %v: next %v not after now", f, now, a)
			}
			b, _ := c.NextRun(f, p, "", now, nil)
			if !a.Equal(b) {
				t.Fatalf("%s at %v: not idempotent: %v vs %v", f, now, a, b)
			}
		}
	}
}

func TestNextRunReferenceZone(t *testing.T) {
	t.Parallel()
	jakarta := time.FixedZone("WIB", 7*3600)
	c := Calculator{Reference: jakarta}
	got, ok := c.NextRun(Daily, Params{}, "America/New_York", at("2024-01-01T00:00:00Z"), nil)
	if !ok {
		t.Fatal("expected next run")
	}
	if want := at("2024-01-01T02:00:00Z"); !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunHonorTimezone(t *testing.T) {
	t.Parallel()
	if _, err := time.LoadLocation("Asia/Tokyo"); err != nil {
		t.Skip("tzdata unavailable")
	}
	c := Calculator{HonorTimezone: true}
	got, ok := c.NextRun(Daily, Params{}, "Asia/Tokyo", at("2024-01-01T00:00:00Z"), nil)
	if !ok {
		t.Fatal("expected next run")
	}
	if want := at("2024-01-02T00:00:00Z"); !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
}

func TestNextRunCronStrategy(t *testing.T) {
	t.Parallel()
	c := Calculator{Cron: NewRobfigCron()}
	got, ok := c.NextRun(Cron, Params{Cron: "0 */6 * * *"}, "", at("2024-01-01T10:30:00Z"), nil)
	if !ok {
		t.Fatal("expected next run")
	}
	if want := at("2024-01-01T12:00:00Z"); !got.Equal(want) {
		t.Fatalf("NextRun = %v, want %v", got, want)
	}
	if _, ok := c.NextRun(Cron, Params{Cron: "not cron"}, "", at("2024-01-01T10:30:00Z"), nil); ok {
		t.Fatal("invalid expression should not schedule")
	}
}

func TestComputeNextRunWindow(t *testing.T) {
	t.Parallel()
	var c Calculator
	now := at("2024-01-01T10:00:00Z")

	start := at("2024-01-10T00:00:00Z")
	got, ok := c.ComputeNextRun(Spec{Frequency: Daily, StartAt: &start}, now, nil)
	if !ok || !got.Equal(at("2024-01-10T09:00:00Z")) {
		t.Fatalf("daily with future start = %v %v", got, ok)
	}

	got, ok = c.ComputeNextRun(Spec{Frequency: Interval, StartAt: &start}, now, nil)
	if !ok || !got.Equal(start) {
		t.Fatalf("interval with future start = %v %v", got, ok)
	}

	end := at("2024-01-01T12:00:00Z")
	if got, ok := c.ComputeNextRun(Spec{Frequency: Daily, EndAt: &end}, now, nil); ok {
		t.Fatalf("daily past end = %v, want none", got)
	}

	if got, ok := c.ComputeNextRun(Spec{Frequency: Once, StartAt: &start}, now, nil); ok {
		t.Fatalf("once never has a next run, got %v", got)
	}
	past := now.Add(-48 * time.Hour)
	if got, ok := c.ComputeNextRun(Spec{Frequency: Once, StartAt: &past}, now, nil); ok {
		t.Fatalf("once with past start must not schedule, got %v", got)
	}
}

func TestPlanRunOnce(t *testing.T) {
	t.Parallel()
	c := Calculator{}
	now := at("2024-01-01T10:00:00Z")
	future := now.Add(48 * time.Hour)
	past := now.Add(-48 * time.Hour)
	end := now.Add(time.Hour)
	last := now.Add(-time.Minute)

	cases := []struct {
		name string
		spec Spec
		last *time.Time
		want *time.Time
	}{
		{name: "no start fires at creation", spec: Spec{Frequency: Once}, want: &now},
		{name: "future start", spec: Spec{Frequency: Once, StartAt: &future}, want: &future},
		{name: "past start fires now", spec: Spec{Frequency: Once, StartAt: &past}, want: &now},
		{name: "already ran", spec: Spec{Frequency: Once}, last: &last},
		{name: "start past end", spec: Spec{Frequency: Once, StartAt: &future, EndAt: &end}},
	}
	for _, tc := range cases {
		got, ok := c.PlanRun(tc.spec, now, tc.last)
		if tc.want == nil {
			if ok {
				t.Fatalf("%s: got %v, want none", tc.name, got)
			}
			continue
		}
		if !ok || !got.Equal(*tc.want) {
			t.Fatalf("%s: got %v %v, want %v", tc.name, got, ok, *tc.want)
		}
	}

	daily := Spec{Frequency: Daily}
	want, _ := c.ComputeNextRun(daily, now, nil)
	if got, ok := c.PlanRun(daily, now, nil); !ok || !got.Equal(want) {
		t.Fatalf("daily plan = %v, want %v", got, want)
	}
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()
	if err := (Params{Interval: &Every{Value: 3_000_000, Unit: Hours}}).Validate(Interval); err == nil {
		t.Fatal("expected error for an interval that overflows")
	}
	if d := (Every{Value: int(maxEveryValue), Unit: Hours}).Duration(); d <= 0 {
		t.Fatalf("largest interval = %v", d)
	}
	if err := (Params{Hour: Int(9), Minute: Int(30)}).Validate(Daily); err != nil {
		t.Fatalf("valid params: %v", err)
	}
	if err := (Params{Hour: Int(24)}).Validate(Daily); err == nil {
		t.Fatal("expected error for hour=24")
	}
	if err := (Params{DayOfMonth: Int(0)}).Validate(Monthly); err == nil {
		t.Fatal("expected error for dayOfMonth=0")
	}
	// irrelevant fields are ignored
	if err := (Params{DayOfMonth: Int(99)}).Validate(Daily); err != nil {
		t.Fatalf("irrelevant field validated: %v", err)
	}
	if err := (Params{}).Validate(Cron); err == nil {
		t.Fatal("expected error for empty cron")
	}
}

func TestStateDue(t *testing.T) {
	t.Parallel()
	now := at("2024-01-01T10:00:00Z")
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)
	tests := []struct {
		name  string
		state State
		want  bool
	}{
		{name: "due", state: State{Enabled: true, Status: StatusActive, NextRunAt: &past}, want: true},
		{name: "exactly now", state: State{Enabled: true, Status: StatusActive, NextRunAt: &now}, want: true},
		{name: "future", state: State{Enabled: true, Status: StatusActive, NextRunAt: &future}},
		{name: "disabled", state: State{Enabled: false, Status: StatusActive, NextRunAt: &past}},
		{name: "paused", state: State{Enabled: true, Status: StatusPaused, NextRunAt: &past}},
		{name: "no next run", state: State{Enabled: true, Status: StatusActive}},
	}
	for _, tt := range tests {
		if got := tt.state.Due(now); got != tt.want {
			t.Fatalf("%s: Due = %v, want %v", tt.name, got, tt.want)
		}
	}
}
