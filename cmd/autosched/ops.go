package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"autosched/internal/automation"
	"autosched/internal/schedule"
	"autosched/internal/trigger"
	"autosched/internal/view"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func newSchedulesCommand(opts *rootOptions) *cobra.Command {
	var (
		families  []string
		scheduled bool
		enabled   bool
		within    time.Duration
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "List workflows and jobs ordered by next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := view.Filter{ScheduledOnly: scheduled, EnabledOnly: enabled, Limit: limit}
			for _, raw := range families {
				fam, err := schedule.ParseFamily(raw)
				if err != nil {
					return err
				}
				f.Families = append(f.Families, fam)
			}
			if within > 0 {
				before := time.Now().Add(within)
				f.Before = &before
			}

			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			entries, err := a.View().List(cmd.Context(), f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REF\tNAME\tFREQUENCY\tENABLED\tSTATUS\tLAST RUN\tNEXT RUN")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\t%s\t%s\n",
					e.Ref, e.Name, e.Frequency, e.Enabled, e.Status, formatTime(e.LastRunAt), formatTime(e.NextRunAt))
			}
			return tw.Flush()
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&families, "family", nil, "only these families (workflow, notebook, data_sync)")
	fl.BoolVar(&scheduled, "scheduled", false, "only entries with a next run")
	fl.BoolVar(&enabled, "enabled", false, "only enabled entries")
	fl.DurationVar(&within, "within", 0, "only entries due within this duration")
	fl.IntVar(&limit, "limit", 0, "maximum entries (0 is unlimited)")
	fl.BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newTriggerCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "trigger <workflow-id> [record-id...]",
		Short: "Run a workflow now against all or the given records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			out, err := a.Scheduler().Trigger(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s: %s", out.RunID, out.Status)
			if out.Reason != "" {
				fmt.Fprintf(w, " (%s)", out.Reason)
			}
			fmt.Fprintln(w)
			if len(out.ChangedAttributeIDs) > 0 {
				fmt.Fprintf(w, "changed: %s\n", strings.Join(out.ChangedAttributeIDs, ", "))
			}
			for _, r := range out.Records {
				fmt.Fprintf(w, "  %s\t%s\tmatched=%v\n", r.RecordID, r.Status, r.Matched)
			}
			if out.Status == trigger.Failed {
				return fmt.Errorf("workflow %s failed: %w", args[0], out.Err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcome as JSON")
	return cmd
}

func newRunJobCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run-job <family:id>",
		Short: "Dispatch a notebook or data-sync job now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := automation.ParseRef(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Scheduler().RunJob(cmd.Context(), ref); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s dispatched\n", ref)
			return nil
		},
	}
}

func newEnableCommand(opts *rootOptions, enable bool) *cobra.Command {
	use, short := "enable", "Enable scheduled firing of an automation"
	if !enable {
		use, short = "disable", "Disable scheduled firing of an automation"
	}
	return &cobra.Command{
		Use:   use + " <family:id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := automation.ParseRef(args[0])
			if err != nil {
				return err
			}
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			st, err := a.Scheduler().SetEnabled(cmd.Context(), ref, enable)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%v next=%s\n", ref, st.Enabled, formatTime(st.NextRunAt))
			return nil
		},
	}
}

func newRunsCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "runs [family:id]",
		Short: "Show the run journal, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref := ""
			if len(args) == 1 {
				r, err := automation.ParseRef(args[0])
				if err != nil {
					return err
				}
				ref = r.String()
			}
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			runs, err := a.Store().ListRuns(cmd.Context(), ref, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tREF\tSIGNAL\tSTATUS\tRECORDS\tREASON")
			for _, r := range runs {
				reason := r.Reason
				if r.Error != "" {
					reason = r.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Ref, r.Signal, r.Status, r.Records, reason)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs (0 is unlimited)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newApplyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <catalog-file>",
		Short: "Load a workflow/job catalog into storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			rep, err := a.LoadCatalog(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "workflows=%d jobs=%d seeded=%d rescheduled=%d\n",
				rep.Workflows, rep.Jobs, len(rep.Seeded), len(rep.Rescheduled))
			return nil
		},
	}
}
