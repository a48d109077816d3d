package schedule

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// CronStrategy resolves CRON frequencies. Implementations must be total.
type CronStrategy interface {
	Next(expr string, loc *time.Location, now time.Time) (time.Time, bool)
}

// RobfigCron evaluates standard 5-field expressions and descriptors
// ("@hourly", "@every 15m") with robfig/cron.
type RobfigCron struct {
	parser cron.Parser
}

func NewRobfigCron() RobfigCron {
	return RobfigCron{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (r RobfigCron) Next(expr string, loc *time.Location, now time.Time) (time.Time, bool) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, false
	}
	sched, err := r.parser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	next := sched.Next(now.In(loc))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Valid reports whether expr parses.
func (r RobfigCron) Valid(expr string) error {
	_, err := r.parser.Parse(strings.TrimSpace(expr))
	return err
}
