package schedule

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Frequency is the canonical schedule frequency.
type Frequency string

const (
	Once     Frequency = "ONCE"
	Hourly   Frequency = "HOURLY"
	Daily    Frequency = "DAILY"
	Weekly   Frequency = "WEEKLY"
	Monthly  Frequency = "MONTHLY"
	Interval Frequency = "INTERVAL"
	Cron     Frequency = "CRON"
)

// Frequencies lists the canonical set in declaration order.
var Frequencies = []Frequency{Once, Hourly, Daily, Weekly, Monthly, Interval, Cron}

// Canonical reports whether f is one of the canonical frequencies.
func (f Frequency) Canonical() bool {
	for _, c := range Frequencies {
		if f == c {
			return true
		}
	}
	return false
}

// Unit is the unit of an interval schedule.
type Unit string

const (
	Minutes Unit = "minutes"
	Hours   Unit = "hours"
)

// Every is an interval value and unit.
type Every struct {
	Value int  `json:"value"`
	Unit  Unit `json:"unit"`
}

// maxEveryValue keeps Value * time.Hour within time.Duration.
const maxEveryValue = math.MaxInt64 / int64(time.Hour)

// Duration returns the interval length. An empty unit means minutes;
// invalid or out-of-range values yield 0.
func (e Every) Duration() time.Duration {
	if e.Value <= 0 || int64(e.Value) > maxEveryValue {
		return 0
	}
	switch Unit(strings.ToLower(strings.TrimSpace(string(e.Unit)))) {
	case Minutes, "":
		return time.Duration(e.Value) * time.Minute
	case Hours:
		return time.Duration(e.Value) * time.Hour
	}
	return 0
}

// Params is the loose parameter bag of a schedule. Fields irrelevant to the
// frequency are ignored.
type Params struct {
	Hour       *int   `json:"hour,omitempty"`
	Minute     *int   `json:"minute,omitempty"`
	DayOfWeek  *int   `json:"dayOfWeek,omitempty"`  // 0=Sunday..6
	DayOfMonth *int   `json:"dayOfMonth,omitempty"` // 1..31
	Interval   *Every `json:"interval,omitempty"`
	Cron       string `json:"cron,omitempty"`
}

// Spec is an immutable schedule declaration.
type Spec struct {
	Frequency Frequency  `json:"frequency"`
	Params    Params     `json:"params"`
	Timezone  string     `json:"timezone,omitempty"`
	StartAt   *time.Time `json:"startAt,omitempty"`
	EndAt     *time.Time `json:"endAt,omitempty"`
}

// Status is the lifecycle status of a schedulable entity.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusPaused Status = "PAUSED"
)

// State is the mutable schedule state of one entity. NextRunAt is only ever
// written from a calculator result.
type State struct {
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
	Enabled   bool       `json:"enabled"`
	Status    Status     `json:"status"`
}

// Runnable reports whether the entity may fire on its own.
func (s State) Runnable() bool {
	return s.Enabled && s.Status != StatusPaused
}

// Due reports whether a poll at now should fire the entity.
func (s State) Due(now time.Time) bool {
	if !s.Runnable() || s.NextRunAt == nil {
		return false
	}
	return !now.Before(*s.NextRunAt)
}

var ErrInvalidFrequencyParams = errors.New("invalid frequency params")

const (
	DefaultHour       = 9
	DefaultMinute     = 0
	DefaultDayOfWeek  = int(time.Monday)
	DefaultDayOfMonth = 1
	DefaultInterval   = 60 // minutes
)

// Validate reports parameters that are out of range for f. The calculator
// still accepts such params and uses defaults in their place.
func (p Params) Validate(f Frequency) error {
	var errs []error
	bad := func(field string, v any) {
		errs = append(errs, fmt.Errorf("%w: %s=%v", ErrInvalidFrequencyParams, field, v))
	}
	checkClock := func() {
		if p.Hour != nil && (*p.Hour < 0 || *p.Hour > 23) {
			bad("hour", *p.Hour)
		}
		if p.Minute != nil && (*p.Minute < 0 || *p.Minute > 59) {
			bad("minute", *p.Minute)
		}
	}
	switch f {
	case Daily:
		checkClock()
	case Weekly:
		checkClock()
		if p.DayOfWeek != nil && (*p.DayOfWeek < 0 || *p.DayOfWeek > 6) {
			bad("dayOfWeek", *p.DayOfWeek)
		}
	case Monthly:
		checkClock()
		if p.DayOfMonth != nil && (*p.DayOfMonth < 1 || *p.DayOfMonth > 31) {
			bad("dayOfMonth", *p.DayOfMonth)
		}
	case Interval:
		if p.Interval != nil && p.Interval.Duration() <= 0 {
			bad("interval", fmt.Sprintf("%d %s", p.Interval.Value, p.Interval.Unit))
		}
	case Cron:
		if strings.TrimSpace(p.Cron) == "" {
			bad("cron", `""`)
		}
	}
	return errors.Join(errs...)
}

func (p Params) hour() int {
	if p.Hour == nil || *p.Hour < 0 || *p.Hour > 23 {
		return DefaultHour
	}
	return *p.Hour
}

func (p Params) minute() int {
	if p.Minute == nil || *p.Minute < 0 || *p.Minute > 59 {
		return DefaultMinute
	}
	return *p.Minute
}

func (p Params) dayOfWeek() int {
	if p.DayOfWeek == nil || *p.DayOfWeek < 0 || *p.DayOfWeek > 6 {
		return DefaultDayOfWeek
	}
	return *p.DayOfWeek
}

func (p Params) dayOfMonth() int {
	if p.DayOfMonth == nil || *p.DayOfMonth < 1 || *p.DayOfMonth > 31 {
		return DefaultDayOfMonth
	}
	return *p.DayOfMonth
}

func (p Params) every() time.Duration {
	if p.Interval == nil {
		return DefaultInterval * time.Minute
	}
	if d := p.Interval.Duration(); d > 0 {
		return d
	}
	return DefaultInterval * time.Minute
}

// Int returns a pointer to v. Handy for building Params literals.
func Int(v int) *int { return &v }
