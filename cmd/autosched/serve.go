package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autosched/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var shutdown time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp()
			if err != nil {
				return err
			}
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := a.Start(context.Background()); err != nil {
				_ = a.Close()
				return err
			}

			reason := app.StopUnknown
			select {
			case sig := <-sigCh:
				reason = app.StopSIGINT
				if sig == syscall.SIGTERM {
					reason = app.StopSIGTERM
				}
			case <-a.Done():
				reason = app.StopFatalError
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdown)
			defer cancel()
			if err := a.Stop(ctx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&shutdown, "shutdown-timeout", 10*time.Second, "upper bound for graceful shutdown")
	return cmd
}
