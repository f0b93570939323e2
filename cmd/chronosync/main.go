package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chronosync/internal/config"
	appLog "chronosync/internal/log"
)

const version = "0.3.0"

// rootOptions holds the persistent flags and the config they resolve to.
type rootOptions struct {
	configPath string
	logLevel   string

	cfg *config.Config
}

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:     "chronosync",
		Short:   "Next upcoming event across public holidays and your own calendars",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return fmt.Errorf("load config %s: %w", opts.configPath, err)
			}
			if opts.logLevel != "" {
				cfg.LogLevel = opts.logLevel
			}
			appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
			opts.cfg = cfg
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "./chronosync.yaml", "config file path, created with defaults if missing")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")

	cmd.AddCommand(
		newServeCommand(opts),
		newDashboardCommand(opts),
		newMonthCommand(opts),
		newSlotsCommand(opts),
		newCountriesCommand(opts),
	)
	return cmd
}
