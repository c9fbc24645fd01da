// Package scheduler triggers ingestion cycles once or periodically on top of
// robfig/cron, guaranteeing that cycles never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/robfig/cron/v3"
)

// DefaultInterval is the periodic mode interval when none is configured.
const DefaultInterval = 60 * time.Minute

// Runner runs one ingestion cycle. *ingest.Orchestrator implements it.
type Runner interface {
	RunCycle(ctx context.Context) (*ingest.CycleReport, error)
}

// Options configures a Scheduler.
type Options struct {
	Runner   Runner
	Interval time.Duration
	// Guard, when set, is held around every cycle.
	Guard  Guard
	Logger *slog.Logger
	// OnReport is called after every completed cycle in periodic mode.
	OnReport func(*ingest.CycleReport)
}

// Scheduler runs cycles on demand or at a fixed interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	guard    Guard
	logger   *slog.Logger
	onReport func(*ingest.CycleReport)
}

// New creates a scheduler.
func New(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		runner:   opts.Runner,
		interval: opts.Interval,
		guard:    opts.Guard,
		logger:   opts.Logger.With("component", "scheduler"),
		onReport: opts.OnReport,
	}
}

// Interval returns the periodic interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// RunOnce executes exactly one cycle. It returns ErrGuardBusy when another
// process holds the guard and ingest.ErrCycleInProgress when a cycle is
// already running in this process.
func (s *Scheduler) RunOnce(ctx context.Context) (*ingest.CycleReport, error) {
	if s.guard != nil {
		release, err := s.guard.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release cycle guard", "err", err)
			}
		}()
	}
	return s.runner.RunCycle(ctx)
}

// Run executes one cycle immediately and then one every interval until ctx
// is cancelled. A trigger that fires while a cycle is running is delayed
// until it finishes. On cancellation Run waits for the running cycle and
// returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{s.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(coalesce(logger), cron.Recover(logger)),
	)
	c.Schedule(newEvery(s.interval), cron.FuncJob(func() { s.tick(ctx) }))

	c.Start()
	s.logger.Info("periodic mode started", "interval", s.interval.String())

	<-ctx.Done()
	s.logger.Info("stopping, waiting for the running cycle")
	<-c.Stop().Done()
	s.logger.Info("periodic mode stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := s.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrGuardBusy):
		s.logger.Info("skipping cycle, another process is running one")
		return
	case errors.Is(err, ingest.ErrCycleInProgress):
		s.logger.Info("skipping cycle, one is already running")
		return
	case err != nil:
		s.logger.Error("cycle failed", "err", err)
		return
	}
	if s.onReport != nil {
		s.onReport(report)
	}
}

// every fires once immediately and then at a constant interval measured from
// each activation.
type every struct {
	interval time.Duration
	fired    bool
}

func newEvery(interval time.Duration) *every {
	return &every{interval: interval}
}

// Next implements cron.Schedule. Cron only calls it from its run loop.
func (e *every) Next(t time.Time) time.Time {
	if !e.fired {
		e.fired = true
		return t
	}
	return t.Add(e.interval)
}

// coalesce runs at most one job at a time. Triggers arriving while the job
// runs collapse into a single re-run once it finishes.
func coalesce(logger cron.Logger) cron.JobWrapper {
	return func(j cron.Job) cron.Job {
		var (
			mu      sync.Mutex
			running bool
			pending bool
		)
		return cron.FuncJob(func() {
			mu.Lock()
			if running {
				if !pending {
					logger.Info("cycle overran its interval, delaying next run")
				}
				pending = true
				mu.Unlock()
				return
			}
			running = true
			mu.Unlock()

			for {
				j.Run()
				mu.Lock()
				if !pending {
					running = false
					mu.Unlock()
					return
				}
				pending = false
				mu.Unlock()
			}
		})
	}
}

// cronLogger adapts slog to cron.Logger. Cron's scheduling chatter goes to debug.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(fmt.Sprintf("cron: %s", msg), append(keysAndValues, "err", err)...)
}
