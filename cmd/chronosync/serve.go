package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "chronosync/internal/log"
	"chronosync/internal/scheduler"
	"chronosync/internal/web"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled dashboard refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if listen != "" {
				cfg.Listen = listen
			}

			appLog.Info("chronosync starting", "version", version)
			appLog.Info("effective config",
				"listen", cfg.Listen,
				"timezone", cfg.Timezone,
				"week_start", cfg.WeekStart,
				"refresh", cfg.RefreshCron,
				"database", cfg.Database,
				"state_file", cfg.StateFile,
				"holidays_api_key_set", cfg.Holidays.APIKey != "",
				"basic_auth", cfg.BasicAuth != nil,
			)

			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			// Root context canceled on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched, err := scheduler.New(cfg.RefreshCron, cfg.Location(), func(ctx context.Context) {
				a.dashboard.Refresh(ctx)
			})
			if err != nil {
				return err
			}
			sched.Start(ctx)
			defer sched.Stop()
			go sched.RunNow()

			err = web.StartServer(ctx, cfg.Listen, a.server())
			appLog.Info("chronosync exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
