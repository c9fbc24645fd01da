package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete postings that have not been seen for a while",
	RunE:  runCleanup,
}

var cleanupDays int

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 30, "Delete postings not seen in this many days")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	a, err := newBaseApp(cmd.Context(), cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	removed, err := a.store.PurgeOlderThan(cmd.Context(), cleanupDays)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d postings not seen in the last %d days\n", removed, cleanupDays)
	return nil
}
