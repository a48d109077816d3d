package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var reClock = regexp.MustCompile(`^\s*(\d{1,2}):(\d{2})\s*$`)

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(v string) (hour, minute int, err error) {
	m := reClock.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, 0, fmt.Errorf("invalid time of day %q (use HH:MM)", v)
	}
	hour = atoi(m[1])
	minute = atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: time of day %q", ErrInvalidFrequencyParams, v)
	}
	return hour, minute, nil
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseEvery parses an interval written as a Go duration ("55m", "2h") or as
// HH:MM ("02:30"). The result is expressed in whole hours when exact,
// otherwise in minutes.
func ParseEvery(v string) (Every, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Every{}, fmt.Errorf("interval required")
	}
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); len(m) == 3 {
		mm := atoi(m[2])
		if mm > 59 {
			return Every{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(atoi(m[1]))*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return Every{}, fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '55m'/'2h')", v)
		}
	}
	if d < time.Minute || d%time.Minute != 0 {
		return Every{}, fmt.Errorf("%w: interval %q must be a positive whole number of minutes", ErrInvalidFrequencyParams, v)
	}
	if d%time.Hour == 0 {
		return Every{Value: int(d / time.Hour), Unit: Hours}, nil
	}
	return Every{Value: int(d / time.Minute), Unit: Minutes}, nil
}

// ParseWeekday accepts 0..6 or an English day name ("mon", "Monday").
func ParseWeekday(v string) (int, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	if len(s) == 1 && s[0] >= '0' && s[0] <= '6' {
		return int(s[0] - '0'), nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return int(d), nil
		}
	}
	return 0, fmt.Errorf("%w: day of week %q", ErrInvalidFrequencyParams, v)
}

func atoi(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
