// Package ingest runs ingestion cycles: every configured query is sent to its
// sources, results are upserted into the store, and the postings discovered
// for the first time are handed to the notifier once per cycle.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/job-monitor/internal/db"
	"github.com/jonathan/job-monitor/internal/notify"
	"github.com/jonathan/job-monitor/internal/source"
	"github.com/jonathan/job-monitor/internal/types"
)

// ErrCycleInProgress is returned by RunCycle while another cycle is running.
var ErrCycleInProgress = errors.New("ingestion cycle already in progress")

// Status is the lifecycle state of a cycle.
type Status string

const (
	StatusIdle                Status = "idle"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
)

// Store is the subset of db.Store a cycle writes to.
type Store interface {
	UpsertBatch(ctx context.Context, postings []types.Posting) db.BatchResult
	RecordRun(ctx context.Context, query, location string, found int) error
}

// Fetcher runs one request against a list of sources. *source.Registry implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req source.Request, sources []string) []source.Result
}

// Notifier delivers the postings discovered by a cycle. *notify.Fanout implements it.
type Notifier interface {
	Notify(ctx context.Context, postings []types.Posting) notify.Report
}

// QueryReport is the outcome of one query within a cycle.
type QueryReport struct {
	Query        types.Query       `json:"query"`
	Found        int               `json:"found"`
	Novel        int               `json:"novel"`
	Filtered     int               `json:"filtered"`
	Failed       int               `json:"failed"` // postings the store did not apply
	SourceErrors map[string]string `json:"source_errors,omitempty"`
	RunRecorded  bool              `json:"run_recorded"`
}

// HasErrors reports whether any part of the query failed.
func (q QueryReport) HasErrors() bool {
	return len(q.SourceErrors) > 0 || q.Failed > 0 || !q.RunRecorded
}

// CycleReport is the outcome of one cycle.
type CycleReport struct {
	ID           uuid.UUID       `json:"id"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
	Status       Status          `json:"status"`
	Queries      []QueryReport   `json:"queries"`
	Novel        []types.Posting `json:"novel"`
	Notification notify.Report   `json:"notification"`
	Cancelled    bool            `json:"cancelled"`
}

// Found is the number of postings returned by sources over all queries.
func (r *CycleReport) Found() int {
	n := 0
	for _, q := range r.Queries {
		n += q.Found
	}
	return n
}

// Duration is the wall time of the cycle.
func (r *CycleReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Options configures an Orchestrator.
type Options struct {
	Store           Store
	Sources         Fetcher
	Notifier        Notifier // optional
	Queries         []types.Query
	ExcludeKeywords []string
	Logger          *slog.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Orchestrator runs ingestion cycles, one at a time.
type Orchestrator struct {
	store    Store
	sources  Fetcher
	notifier Notifier
	queries  []types.Query
	exclude  []string
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex // held for the duration of a cycle
	stateMu sync.RWMutex
	state   Status
	last    *CycleReport
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		store:    opts.Store,
		sources:  opts.Sources,
		notifier: opts.Notifier,
		queries:  opts.Queries,
		exclude:  opts.ExcludeKeywords,
		logger:   opts.Logger.With("component", "ingest"),
		now:      opts.Now,
		state:    StatusIdle,
	}
}

// State returns StatusRunning while a cycle runs, StatusIdle otherwise.
func (o *Orchestrator) State() Status {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state
}

// LastReport returns the report of the most recent finished cycle, or nil.
func (o *Orchestrator) LastReport() *CycleReport {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.last
}

func (o *Orchestrator) setState(s Status, report *CycleReport) {
	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	o.state = s
	if report != nil {
		o.last = report
	}
}

// RunCycle performs one ingestion cycle. It returns ErrCycleInProgress
// without doing anything when a cycle is already running. Cancellation of ctx
// is checked between queries only: a running query finishes its source calls,
// stores its postings and records its run, bounded by the source timeout. A
// cancelled cycle still notifies for the postings it already stored.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !o.mu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer o.mu.Unlock()
	o.setState(StatusRunning, nil)

	report := &CycleReport{
		ID:        uuid.New(),
		StartedAt: o.now(),
		Status:    StatusRunning,
	}
	logger := o.logger.With("cycle_id", report.ID.String())
	logger.Info("cycle started", "queries", len(o.queries))

	// Stored postings are no longer novel on the next cycle, so storing and
	// delivering them must not depend on the cycle context.
	work := context.WithoutCancel(ctx)

	hasErrors := false
	for _, q := range o.queries {
		if ctx.Err() != nil {
			report.Cancelled = true
			hasErrors = true
			logger.Warn("cycle cancelled before all queries ran", "err", ctx.Err())
			break
		}
		qr, novel := o.runQuery(work, logger, q)
		report.Queries = append(report.Queries, qr)
		report.Novel = append(report.Novel, novel...)
		if qr.HasErrors() {
			hasErrors = true
		}
	}

	if len(report.Novel) > 0 && o.notifier != nil {
		report.Notification = o.notifier.Notify(work, report.Novel)
	}

	report.FinishedAt = o.now()
	report.Status = StatusCompleted
	if hasErrors {
		report.Status = StatusCompletedWithErrors
	}
	o.setState(StatusIdle, report)

	logger.Info("cycle finished",
		"status", report.Status,
		"found", report.Found(),
		"novel", len(report.Novel),
		"notified", report.Notification.OK(),
		"elapsed", report.Duration())
	return report, nil
}

func (o *Orchestrator) runQuery(ctx context.Context, logger *slog.Logger, q types.Query) (QueryReport, []types.Posting) {
	qr := QueryReport{Query: q}
	logger = logger.With("query", q.SearchTerm, "location", q.Location)

	req := source.Request{SearchTerm: q.SearchTerm, Location: q.Location, MaxPages: q.MaxPages}
	var found []types.Posting
	for _, res := range o.sources.Fetch(ctx, req, q.Sources) {
		if !res.OK() {
			if qr.SourceErrors == nil {
				qr.SourceErrors = make(map[string]string)
			}
			qr.SourceErrors[res.Source] = res.Err.Error()
			continue
		}
		found = append(found, res.Postings...)
	}
	qr.Found = len(found)

	kept, filtered := filterExcluded(found, o.exclude)
	qr.Filtered = filtered

	batch := o.store.UpsertBatch(ctx, kept)
	qr.Novel = batch.NovelCount()
	qr.Failed = batch.Failed

	if err := o.store.RecordRun(ctx, q.SearchTerm, q.Location, qr.Found); err != nil {
		logger.Error("failed to record search run", "err", err)
	} else {
		qr.RunRecorded = true
	}

	logger.Info("query finished",
		"found", qr.Found,
		"novel", qr.Novel,
		"seen", batch.Seen,
		"filtered", qr.Filtered,
		"failed", qr.Failed,
		"source_errors", len(qr.SourceErrors))
	return qr, batch.Novel
}
