package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single adapter call when the registry is built without one.
const DefaultTimeout = 2 * time.Minute

// DefaultParallelism is the number of adapters a single query may run at once.
const DefaultParallelism = 4

// ErrUnknownSource is returned for names that were never registered.
var ErrUnknownSource = errors.New("unknown source")

// PanicError wraps a panic raised inside an adapter.
type PanicError struct {
	Source string
	Value  any
	Stack  []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("source %s panicked: %v", e.Source, e.Value)
}

// Registry maps source names to adapters.
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	timeout     time.Duration
	parallelism int
	logger      *slog.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Timeout     time.Duration
	Parallelism int
	Logger      *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		adapters:    make(map[string]Adapter),
		timeout:     opts.Timeout,
		parallelism: opts.Parallelism,
		logger:      opts.Logger.With("component", "registry"),
	}
}

// Register adds an adapter under its Name. Names must be unique and non-empty.
func (r *Registry) Register(a Adapter) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("adapter name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Lookup returns the adapter registered under name.
func (r *Registry) Lookup(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate returns an error naming the first unregistered source.
func (r *Registry) Validate(names []string) error {
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
	}
	return nil
}

// Fetch runs req against each named source and returns one Result per name,
// in the order given. Sources run concurrently up to the registry's
// parallelism; each call is bounded by the registry timeout and isolated from
// panics. Cancelling ctx does not abort calls already started; they finish or
// time out. A failed call yields a Result with Err set and no postings.
//
// Postings are stamped with the source name and the request's search term
// and have their defaults filled.
func (r *Registry) Fetch(ctx context.Context, req Request, sources []string) []Result {
	results := make([]Result, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i, name := range sources {
		g.Go(func() error {
			results[i] = r.fetchOne(gctx, name, req)
			// Source errors never cancel sibling sources.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Registry) fetchOne(ctx context.Context, name string, req Request) Result {
	logger := r.logger.With("source", name, "query", req.SearchTerm)
	start := time.Now()

	adapter, ok := r.Lookup(name)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownSource, name)
		logger.Error("source failed", "err", err)
		return Result{Source: name, Err: err}
	}

	postings, err := r.call(ctx, adapter, req)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("source failed", "err", err, "elapsed", elapsed)
		return Result{Source: name, Err: err, Elapsed: elapsed}
	}

	for i := range postings {
		postings[i].Source = name
		postings[i].Query = req.SearchTerm
		postings[i] = postings[i].WithDefaults()
	}
	logger.Info("source fetched", "postings", len(postings), "elapsed", elapsed)
	return Result{Source: name, Postings: postings, Elapsed: elapsed}
}

// call invokes the adapter in its own goroutine so that an adapter ignoring
// its context is abandoned once the timeout fires. Only the timeout ends a
// call early.
func (r *Registry) call(ctx context.Context, a Adapter, req Request) ([]types.Posting, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	type outcome struct {
		postings []types.Posting
		err      error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if v := recover(); v != nil {
				done <- outcome{err: &PanicError{Source: a.Name(), Value: v, Stack: debug.Stack()}}
			}
		}()
		postings, err := a.Fetch(ctx, req)
		done <- outcome{postings: postings, err: err}
	}()

	select {
	case out := <-done:
		return out.postings, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("source %s: %w", a.Name(), ctx.Err())
	}
}
