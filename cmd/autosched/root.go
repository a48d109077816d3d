package main

import (
	"os"

	"github.com/spf13/cobra"

	"autosched/internal/app"
	"autosched/internal/config"
	"autosched/internal/schedule"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "autosched",
		Short: "Automation and scheduling engine",
		Long: `autosched fires workflow automations and notebook/data-sync jobs on their
schedules, evaluates workflow rules against data-model records and applies
their actions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("AUTOSCHED_CONFIG"),
		"config file (JSON or YAML); empty uses built-in defaults")

	root.AddCommand(
		newServeCommand(opts),
		newNextRunCommand(opts),
		newNormalizeCommand(opts),
		newSchedulesCommand(opts),
		newTriggerCommand(opts),
		newRunJobCommand(opts),
		newEnableCommand(opts, true),
		newEnableCommand(opts, false),
		newRunsCommand(opts),
		newApplyCommand(opts),
	)
	return root
}

// openApp wires the app for a one-shot command. The caller closes it.
func (o *rootOptions) openApp() (*app.App, error) {
	return app.New(o.configPath)
}

// normalizer honors the config's overrides without wiring storage.
func (o *rootOptions) normalizer() (*schedule.Normalizer, error) {
	if o.configPath == "" {
		return schedule.DefaultNormalizer(), nil
	}
	cfg, err := config.NewConfigManager(o.configPath).Load()
	if err != nil {
		return nil, err
	}
	return schedule.NewNormalizer(cfg.Normalizer.Overrides)
}
