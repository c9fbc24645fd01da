package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonathan/job-monitor/internal/config"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run ingestion cycles periodically until interrupted",
	Long: `Runs one cycle immediately and then one every check interval. A cycle that overruns
the interval delays the next one; cycles never overlap. SIGINT or SIGTERM stops the
schedule after the running cycle has finished.`,
	RunE: runSchedule,
}

var scheduleInterval time.Duration

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleInterval, "interval", 0, "Check interval (overrides check_interval)")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.OutOrStdout(), overrideInterval(scheduleInterval))
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	return a.scheduler.Run(ctx)
}

func overrideInterval(interval time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		if interval > 0 {
			cfg.CheckInterval = config.Duration(interval)
		}
	}
}
