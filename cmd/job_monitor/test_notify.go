package main

import (
	"github.com/jonathan/job-monitor/internal/notify"
	"github.com/jonathan/job-monitor/internal/observability"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/spf13/cobra"
)

var testNotifyCmd = &cobra.Command{
	Use:   "test-notify",
	Short: "Send a sample posting through every configured sink",
	Long: `Sends one sample posting through every configured notification sink and reports
which ones delivered it. Sink failures are reported, not returned as errors.`,
	RunE: runTestNotify,
}

func init() {
	rootCmd.AddCommand(testNotifyCmd)
}

func runTestNotify(cmd *cobra.Command, _ []string) error {
	a, err := newBaseApp(cmd.Context(), cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	fanout, err := a.buildFanout(cmd.Context())
	if err != nil {
		return err
	}

	report := fanout.Notify(cmd.Context(), []types.Posting{notify.SamplePosting()})
	observability.NewPrinter(cmd.OutOrStdout()).PrintNotifyReport(report.Delivered, report.Failed)
	return nil
}
