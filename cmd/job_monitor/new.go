package main

import (
	"github.com/jonathan/job-monitor/internal/observability"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "List postings that have not been read yet",
	Long: `Lists every posting still flagged as new, newest first.

With --mark-read the postings are listed and their flag is cleared in one step, so
a posting is never shown twice.`,
	RunE: runNew,
}

var newMarkRead bool

func init() {
	newCmd.Flags().BoolVar(&newMarkRead, "mark-read", false, "Clear the new flag on the listed postings")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, _ []string) error {
	a, err := newBaseApp(cmd.Context(), cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	postings, err := a.store.FetchNovel(cmd.Context(), newMarkRead)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintPostings("NEW POSTINGS", postings)
	return nil
}
