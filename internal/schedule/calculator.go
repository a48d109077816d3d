package schedule

import "time"

// Calculator computes next run instants.
//
// Math happens in Reference (UTC when nil). When HonorTimezone is set, a
// loadable Spec timezone is used instead. Cron delegates CRON frequencies; the
// zero value never schedules them.
type Calculator struct {
	Reference     *time.Location
	HonorTimezone bool
	Cron          CronStrategy
}

// NextRun returns the next firing instant strictly after now, or ok=false
// when the frequency never fires on its own.
func (c Calculator) NextRun(f Frequency, p Params, tz string, now time.Time, lastRunAt *time.Time) (next time.Time, ok bool) {
	loc := c.location(tz)
	now = now.In(loc)

	switch f {
	case Once:
		return time.Time{}, false

	case Hourly:
		top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, loc)
		return top.Add(time.Hour), true

	case Daily:
		at := time.Date(now.Year(), now.Month(), now.Day(), p.hour(), p.minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, true

	case Weekly:
		days := (p.dayOfWeek() - int(now.Weekday()) + 7) % 7
		at := time.Date(now.Year(), now.Month(), now.Day()+days, p.hour(), p.minute(), 0, 0, loc)
		if !at.After(now) {
			at = at.AddDate(0, 0, 7)
		}
		return at, true

	case Monthly:
		at := clampedDate(now.Year(), now.Month(), p.dayOfMonth(), p.hour(), p.minute(), loc)
		if !at.After(now) {
			at = clampedDate(now.Year(), now.Month()+1, p.dayOfMonth(), p.hour(), p.minute(), loc)
		}
		return at, true

	case Interval:
		return now.Add(p.every()), true

	case Cron:
		if c.Cron == nil {
			return time.Time{}, false
		}
		return c.Cron.Next(p.Cron, loc, now)
	}
	return time.Time{}, false
}

// ComputeNextRun applies s.StartAt and s.EndAt on top of NextRun. ONCE never
// has a next run; see PlanRun for its single firing.
func (c Calculator) ComputeNextRun(s Spec, now time.Time, lastRunAt *time.Time) (time.Time, bool) {
	if s.Frequency == Once {
		return time.Time{}, false
	}

	base := now
	if s.StartAt != nil && now.Before(*s.StartAt) {
		if s.Frequency == Interval {
			start := s.StartAt.In(c.location(s.Timezone))
			if !c.inWindow(s, start) {
				return time.Time{}, false
			}
			return start, true
		}
		// strictly-after semantics: a slot exactly at StartAt still counts
		base = s.StartAt.Add(-time.Nanosecond)
	}
	next, ok := c.NextRun(s.Frequency, s.Params, s.Timezone, base, lastRunAt)
	if !ok || !c.inWindow(s, next) {
		return time.Time{}, false
	}
	return next, true
}

// PlanRun is the next run a stored schedule state should carry at now. A
// ONCE spec that has not run yet fires at creation (now), or at StartAt when
// that is later. Everything else is ComputeNextRun.
func (c Calculator) PlanRun(s Spec, now time.Time, lastRunAt *time.Time) (time.Time, bool) {
	if s.Frequency != Once {
		return c.ComputeNextRun(s, now, lastRunAt)
	}
	if lastRunAt != nil {
		return time.Time{}, false
	}
	at := now
	if s.StartAt != nil && s.StartAt.After(now) {
		at = *s.StartAt
	}
	if !c.inWindow(s, at) {
		return time.Time{}, false
	}
	return at.In(c.location(s.Timezone)), true
}

func (c Calculator) inWindow(s Spec, t time.Time) bool {
	return s.EndAt == nil || !t.After(*s.EndAt)
}

func (c Calculator) location(tz string) *time.Location {
	if c.HonorTimezone && tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	if c.Reference != nil {
		return c.Reference
	}
	return time.UTC
}

// clampedDate builds y-m-day at hh:mm, clamping day to the month's last day.
// m may overflow; it is normalized first.
func clampedDate(y int, m time.Month, day, hh, mm int, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hh, mm, 0, 0, loc)
}
