// Package main provides the entry point for the job monitor CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "job_monitor",
	Short: "Job board monitor",
	Long: `Job monitor periodically searches job boards, stores every posting it sees exactly once,
and notifies you about postings it has never seen before.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a TOML config file (defaults to ./job_monitor.toml if present)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database: SQLite file path or postgres:// URL (overrides DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
