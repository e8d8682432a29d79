package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ContentFeed/internal/app"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		addr     string
		schedule bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API and, optionally, scheduled ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if schedule {
				cfg.Scheduler.Enabled = true
			}
			if interval > 0 {
				cfg.Scheduler.Interval = interval
			}
			if cfg.Scheduler.Enabled && cfg.Scheduler.Interval <= 0 {
				return fmt.Errorf("scheduler interval must be positive")
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cmd.SetContext(signalCtx)

			return runApp(cmd, cfg, func(a *app.Application) error {
				return a.Serve(signalCtx)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "Enable recurring ingestion")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Ingestion interval (overrides scheduler.interval)")
	return cmd
}
