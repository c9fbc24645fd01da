package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonathan/job-monitor/internal/boards/adzuna"
	"github.com/jonathan/job-monitor/internal/boards/indeed"
	"github.com/jonathan/job-monitor/internal/boards/linkedin"
	"github.com/jonathan/job-monitor/internal/config"
	"github.com/jonathan/job-monitor/internal/db"
	"github.com/jonathan/job-monitor/internal/ingest"
	"github.com/jonathan/job-monitor/internal/logging"
	"github.com/jonathan/job-monitor/internal/notify"
	"github.com/jonathan/job-monitor/internal/observability"
	"github.com/jonathan/job-monitor/internal/scheduler"
	"github.com/jonathan/job-monitor/internal/source"
)

// knownSources lists every adapter the binary registers.
var knownSources = []string{indeed.Name, linkedin.Name, adzuna.Name}

// app holds the wired components for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	store        db.Store
	registry     *source.Registry
	fanout       *notify.Fanout
	orchestrator *ingest.Orchestrator
	scheduler    *scheduler.Scheduler

	closers []func() error
}

// loadConfig layers the config file, the environment and the persistent flags,
// then validates the result.
func loadConfig(lookup config.LookupFunc) (*config.Config, error) {
	cfg, err := config.Resolve(flagConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DatabaseURL = flagDB
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

// newBaseApp loads configuration, sets up logging and opens the store.
// Commands that only read the store stop here.
func newBaseApp(ctx context.Context, out io.Writer, mutate func(*config.Config)) (*app, error) {
	cfg, err := loadConfig(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(knownSources); err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, out: out, closers: []func() error{closeLog}}

	store, err := db.Open(ctx, cfg.DatabaseURL, db.Options{Logger: logger})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return a, nil
}

// newApp wires the full pipeline: sources, sinks, orchestrator and scheduler.
func newApp(ctx context.Context, out io.Writer, mutate func(*config.Config)) (*app, error) {
	a, err := newBaseApp(ctx, out, mutate)
	if err != nil {
		return nil, err
	}
	if err := a.wirePipeline(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wirePipeline(ctx context.Context) error {
	registry, err := buildRegistry(a.cfg, a.logger)
	if err != nil {
		return err
	}
	a.registry = registry

	fanout, err := a.buildFanout(ctx)
	if err != nil {
		return err
	}
	a.fanout = fanout

	a.orchestrator = ingest.New(ingest.Options{
		Store:           a.store,
		Sources:         registry,
		Notifier:        fanout,
		Queries:         a.cfg.Queries,
		ExcludeKeywords: a.cfg.ExcludeKeywords,
		Logger:          a.logger,
	})

	var guard scheduler.Guard
	if lock := a.cfg.Lock.Redis; lock.URL != "" {
		client, err := notify.ConnectRedis(ctx, lock.URL)
		if err != nil {
			return fmt.Errorf("cycle guard: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		guard = scheduler.NewRedisGuard(client, lock.Key, lock.TTL.Std())
	}

	p := observability.NewPrinter(a.out)
	a.scheduler = scheduler.New(scheduler.Options{
		Runner:   a.orchestrator,
		Interval: a.cfg.CheckInterval.Std(),
		Guard:    guard,
		Logger:   a.logger,
		// Periodic cycles print the same summary as the run command.
		OnReport: func(report *ingest.CycleReport) {
			p.PrintCycleReport(report)
			printStatistics(context.WithoutCancel(ctx), a, p)
		},
	})
	return nil
}

func buildRegistry(cfg *config.Config, logger *slog.Logger) (*source.Registry, error) {
	registry := source.NewRegistry(source.RegistryOptions{
		Timeout:     cfg.AdapterTimeout.Std(),
		Parallelism: cfg.MaxParallelSources,
		Logger:      logger,
	})

	sc := cfg.Sources
	adapters := []source.Adapter{
		indeed.New(indeed.Options{
			BaseURL:   sc.Indeed.BaseURL,
			PageDelay: sc.Indeed.PageDelay.Std(),
			Logger:    logger,
		}),
		linkedin.New(linkedin.Options{
			BaseURL:       sc.LinkedIn.BaseURL,
			RenderTimeout: sc.LinkedIn.RenderTimeout.Std(),
			Logger:        logger,
		}),
		adzuna.New(adzuna.Options{
			BaseURL:        sc.Adzuna.BaseURL,
			AppID:          sc.Adzuna.AppID,
			AppKey:         sc.Adzuna.AppKey,
			Country:        sc.Adzuna.Country,
			ResultsPerPage: sc.Adzuna.ResultsPerPage,
			Logger:         logger,
		}),
	}
	for _, ad := range adapters {
		if err := registry.Register(ad); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// buildFanout creates one sink per configured destination, in a fixed order.
func (a *app) buildFanout(ctx context.Context) (*notify.Fanout, error) {
	nc := a.cfg.Notify
	var sinks []notify.Sink

	if nc.Console.Enabled {
		sinks = append(sinks, notify.NewConsole(a.out))
	}
	if nc.Email.Enabled() {
		sinks = append(sinks, notify.NewEmail(notify.EmailOptions{
			Server:    nc.Email.SMTPServer,
			Port:      nc.Email.SMTPPort,
			Sender:    nc.Email.Sender,
			Password:  nc.Email.Password,
			Recipient: nc.Email.Recipient,
		}))
	}
	if nc.Webhook.URL != "" {
		sinks = append(sinks, notify.NewWebhook(notify.WebhookOptions{
			URL:      nc.Webhook.URL,
			Username: nc.Webhook.Username,
		}))
	}
	if nc.Desktop.Enabled {
		sinks = append(sinks, notify.NewDesktop(nil))
	}
	if nc.Redis.URL != "" {
		client, err := notify.ConnectRedis(ctx, nc.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		sinks = append(sinks, notify.NewRedis(client, nc.Redis.Channel))
	}
	if len(nc.Kafka.Brokers) > 0 {
		k := notify.NewKafka(nc.Kafka.Brokers, nc.Kafka.Topic)
		a.closers = append(a.closers, k.Close)
		sinks = append(sinks, k)
	}

	if len(sinks) == 0 {
		a.logger.Warn("no notification sinks configured, new postings are only stored")
	}
	return notify.NewFanout(notify.FanoutOptions{
		Timeout: a.cfg.NotifyTimeout.Std(),
		Logger:  a.logger,
	}, sinks...), nil
}

// Close releases everything the app opened, in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
