package schedule

import "testing"

func TestParseClock(t *testing.T) {
	t.Parallel()
	h, m, err := ParseClock("23:15")
	if err != nil {
		t.Fatalf("ParseClock error: %v", err)
	}
	if h != 23 || m != 15 {
		t.Fatalf("unexpected result: %d:%d", h, m)
	}
	for _, bad := range []string{"24:00", "9", "12:60", ""} {
		if _, _, err := ParseClock(bad); err == nil {
			t.Fatalf("ParseClock(%q) expected error", bad)
		}
	}
}

func TestParseEvery(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Every
	}{
		{raw: "55m", want: Every{Value: 55, Unit: Minutes}},
		{raw: "2h", want: Every{Value: 2, Unit: Hours}},
		{raw: "90m", want: Every{Value: 90, Unit: Minutes}},
		{raw: "01:30", want: Every{Value: 90, Unit: Minutes}},
		{raw: "02:00", want: Every{Value: 2, Unit: Hours}},
	}
	for _, tt := range tests {
		got, err := ParseEvery(tt.raw)
		if err != nil {
			t.Fatalf("ParseEvery(%q) error: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParseEvery(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
	for _, bad := range []string{"", "30s", "0m", "soon"} {
		if _, err := ParseEvery(bad); err == nil {
			t.Fatalf("ParseEvery(%q) expected error", bad)
		}
	}
}

func TestParseWeekday(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]int{"0": 0, "mon": 1, "Friday": 5, "SAT": 6} {
		got, err := ParseWeekday(raw)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %d,%v want %d", raw, got, err, want)
		}
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatal("expected error")
	}
}
