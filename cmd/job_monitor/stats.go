package main

import (
	"context"

	"github.com/jonathan/job-monitor/internal/observability"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show statistics about stored postings",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := newBaseApp(cmd.Context(), cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	stats, err := a.store.Statistics(cmd.Context())
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintStatistics(stats)
	return nil
}

// printStatistics prints the store statistics after a cycle. A failure is logged
// rather than returned since the cycle itself already completed.
func printStatistics(ctx context.Context, a *app, p *observability.Printer) {
	stats, err := a.store.Statistics(ctx)
	if err != nil {
		a.logger.Warn("failed to read statistics", "err", err)
		return
	}
	p.PrintStatistics(stats)
}
