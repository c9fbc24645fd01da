package main

import (
	"fmt"
	"strings"

	"github.com/jonathan/job-monitor/internal/config"
	"github.com/jonathan/job-monitor/internal/observability"
	"github.com/jonathan/job-monitor/internal/types"
	"github.com/spf13/cobra"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one ingestion cycle and exit",
	Long: `Runs every configured query against its sources once, stores the results and notifies
about postings that were never seen before.

--search replaces the configured queries with a single query; --location and --sources
override those fields on every query.`,
	RunE: runCycleCmd,
}

var (
	runSearch   string
	runLocation string
	runSources  []string
)

func init() {
	runCommand.Flags().StringVar(&runSearch, "search", "", "Search term (replaces the configured queries)")
	runCommand.Flags().StringVar(&runLocation, "location", "", "Location for every query")
	runCommand.Flags().StringSliceVar(&runSources, "sources", nil, "Comma-separated sources for every query (indeed, linkedin, adzuna)")

	rootCmd.AddCommand(runCommand)
}

func runCycleCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout(), func(cfg *config.Config) {
		overrideQueries(cfg, runSearch, runLocation, runSources)
	})
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	report, err := a.scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	p := observability.NewPrinter(cmd.OutOrStdout())
	p.PrintCycleReport(report)
	printStatistics(ctx, a, p)
	return nil
}

// overrideQueries applies the run flags on top of the configured queries.
func overrideQueries(cfg *config.Config, search, location string, sources []string) {
	if search = strings.TrimSpace(search); search != "" {
		base := types.Query{MaxPages: config.DefaultMaxPages}
		if len(cfg.Queries) > 0 {
			base = cfg.Queries[0]
		}
		base.SearchTerm = search
		cfg.Queries = []types.Query{base}
	}

	var cleaned []string
	for _, s := range sources {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, strings.ToLower(s))
		}
	}

	for i := range cfg.Queries {
		if location != "" {
			cfg.Queries[i].Location = location
		}
		if len(cleaned) > 0 {
			cfg.Queries[i].Sources = append([]string(nil), cleaned...)
		}
	}
}
