// Package notify delivers batches of newly discovered postings to the
// configured sinks: console, email, chat webhook, desktop, Redis and Kafka.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// DefaultTimeout bounds a single sink call when the fanout is built without one.
const DefaultTimeout = 30 * time.Second

// Sink delivers one batch of postings to one destination.
type Sink interface {
	Name() string
	Notify(ctx context.Context, postings []types.Posting) error
}

// Report is the outcome of one fanout. Failed maps sink name to error text.
type Report struct {
	Delivered []string          `json:"delivered,omitempty"`
	Failed    map[string]string `json:"failed,omitempty"`
}

// OK reports whether at least one sink delivered the batch.
func (r Report) OK() bool {
	return len(r.Delivered) > 0
}

// Attempted reports whether any sink was invoked.
func (r Report) Attempted() bool {
	return len(r.Delivered)+len(r.Failed) > 0
}

// Fanout invokes every sink with the same batch. Sink failures are isolated.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *slog.Logger
}

// FanoutOptions configures a Fanout.
type FanoutOptions struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewFanout creates a fanout over sinks, invoked in the given order.
func NewFanout(opts FanoutOptions, sinks ...Sink) *Fanout {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Fanout{
		sinks:   sinks,
		timeout: opts.Timeout,
		logger:  opts.Logger.With("component", "notify"),
	}
}

// Names returns the sink names in invocation order.
func (f *Fanout) Names() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Notify sends postings to every sink once. An empty batch is a no-op.
func (f *Fanout) Notify(ctx context.Context, postings []types.Posting) Report {
	var report Report
	if len(postings) == 0 {
		return report
	}

	for _, sink := range f.sinks {
		start := time.Now()
		err := f.call(ctx, sink, postings)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[sink.Name()] = err.Error()
			f.logger.Error("sink failed", "sink", sink.Name(), "postings", len(postings), "err", err)
			continue
		}
		report.Delivered = append(report.Delivered, sink.Name())
		f.logger.Info("sink delivered", "sink", sink.Name(), "postings", len(postings), "elapsed", time.Since(start))
	}

	if !report.OK() {
		f.logger.Warn("no sink delivered the batch", "postings", len(postings))
	}
	return report
}

// call runs one sink under the per-sink timeout. A sink that ignores its
// context is abandoned when the timeout expires.
func (f *Fanout) call(ctx context.Context, sink Sink, postings []types.Posting) error {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				f.logger.Error("sink panicked", "sink", sink.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
			}
		}()
		done <- sink.Notify(ctx, postings)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("sink %s: %w", sink.Name(), ctx.Err())
	}
}

// SamplePosting is the posting sent by test notifications.
func SamplePosting() types.Posting {
	return types.Posting{
		ExternalID: "test-notification",
		Source:     "test",
		Title:      "Test Job Notification",
		Company:    "Test Company",
		Location:   "Remote",
		URL:        "https://example.com",
		Query:      "test",
	}
}
