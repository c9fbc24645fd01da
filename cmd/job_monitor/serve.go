package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/job-monitor/internal/server"
	"github.com/jonathan/job-monitor/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	servePort     int
	serveSchedule bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API, optionally with periodic ingestion",
	Long: `Start an HTTP server that exposes stored postings and on-demand cycles. With
--schedule (the default) cycles also run periodically in the same process.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveSchedule, "schedule", true, "Also run cycles every check interval")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd.OutOrStdout(), nil)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	sc := a.cfg.Server
	port := sc.Port
	if servePort > 0 {
		port = servePort
	}

	srv, err := server.New(server.Config{
		Port:      port,
		RateLimit: ratelimit.NewConfig(sc.RateLimit, sc.Burst, sc.Whitelist),
		Store:     a.store,
		Cycles:    a.scheduler,
		State:     a.orchestrator,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if serveSchedule {
		g.Go(func() error { return a.scheduler.Run(gctx) })
	}
	return g.Wait()
}
