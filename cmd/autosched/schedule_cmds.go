package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"autosched/internal/schedule"
)

type nextRunOptions struct {
	root *rootOptions

	family     string
	at         string
	dayOfWeek  string
	dayOfMonth int
	interval   string
	cron       string
	timezone   string
	now        string
	lastRun    string
	honorTZ    bool
	count      int
}

func newNextRunCommand(root *rootOptions) *cobra.Command {
	o := &nextRunOptions{root: root}
	cmd := &cobra.Command{
		Use:   "next-run <schedule-type>",
		Short: "Print the next firing instants of a schedule",
		Example: `  autosched next-run daily --at 09:30
  autosched next-run monthly --family data_sync
  autosched next-run custom --family data_sync --cron "*/15 * * * *" --count 3`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.family, "family", string(schedule.FamilyWorkflow), "vocabulary of the schedule type: workflow, notebook or data_sync")
	f.StringVar(&o.at, "at", "", "time of day HH:MM")
	f.StringVar(&o.dayOfWeek, "day-of-week", "", "0..6 or a day name")
	f.IntVar(&o.dayOfMonth, "day-of-month", 0, "1..31")
	f.StringVar(&o.interval, "interval", "", `interval such as "90m" or "01:30"`)
	f.StringVar(&o.cron, "cron", "", "cron expression")
	f.StringVar(&o.timezone, "timezone", "", "schedule timezone")
	f.BoolVar(&o.honorTZ, "honor-timezone", false, "compute in --timezone instead of UTC")
	f.StringVar(&o.now, "now", "", "reference instant (RFC3339); default is the current time")
	f.StringVar(&o.lastRun, "last-run", "", "last run instant (RFC3339)")
	f.IntVar(&o.count, "count", 1, "number of consecutive instants to print")
	return cmd
}

func (o *nextRunOptions) run(cmd *cobra.Command, raw string) error {
	fam, err := schedule.ParseFamily(o.family)
	if err != nil {
		return err
	}
	n, err := o.root.normalizer()
	if err != nil {
		return err
	}
	freq, ok := n.Normalize(raw, fam)
	if !ok {
		return fmt.Errorf("unknown %s schedule type %q", fam, raw)
	}
	p, err := o.params()
	if err != nil {
		return err
	}
	now := time.Now()
	if o.now != "" {
		if now, err = time.Parse(time.RFC3339, o.now); err != nil {
			return fmt.Errorf("--now: %w", err)
		}
	}
	var last *time.Time
	if o.lastRun != "" {
		t, err := time.Parse(time.RFC3339, o.lastRun)
		if err != nil {
			return fmt.Errorf("--last-run: %w", err)
		}
		last = &t
	}

	calc := schedule.Calculator{HonorTimezone: o.honorTZ, Cron: schedule.NewRobfigCron()}
	out := cmd.OutOrStdout()
	for i := 0; i < max(o.count, 1); i++ {
		next, ok := calc.NextRun(freq, p, o.timezone, now, last)
		if !ok {
			fmt.Fprintf(out, "%s: never\n", freq)
			return nil
		}
		fmt.Fprintf(out, "%s: %s\n", freq, next.Format(time.RFC3339))
		now, last = next, &next
	}
	return nil
}

func (o *nextRunOptions) params() (schedule.Params, error) {
	var p schedule.Params
	if o.at != "" {
		h, m, err := schedule.ParseClock(o.at)
		if err != nil {
			return p, err
		}
		p.Hour, p.Minute = schedule.Int(h), schedule.Int(m)
	}
	if o.dayOfWeek != "" {
		d, err := schedule.ParseWeekday(o.dayOfWeek)
		if err != nil {
			return p, err
		}
		p.DayOfWeek = schedule.Int(d)
	}
	if o.dayOfMonth != 0 {
		p.DayOfMonth = schedule.Int(o.dayOfMonth)
	}
	if o.interval != "" {
		e, err := schedule.ParseEvery(o.interval)
		if err != nil {
			return p, err
		}
		p.Interval = &e
	}
	p.Cron = strings.TrimSpace(o.cron)
	return p, nil
}

func newNormalizeCommand(opts *rootOptions) *cobra.Command {
	var family string
	cmd := &cobra.Command{
		Use:   "normalize <schedule-type>...",
		Short: "Map schedule type names to canonical frequencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fam, err := schedule.ParseFamily(family)
			if err != nil {
				return err
			}
			n, err := opts.normalizer()
			if err != nil {
				return err
			}
			for _, raw := range args {
				f, ok := n.Normalize(raw, fam)
				suffix := ""
				if !ok {
					suffix = " (unrecognized, passed through)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s%s\n", raw, f, suffix)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&family, "family", string(schedule.FamilyWorkflow), "workflow, notebook or data_sync")
	return cmd
}
