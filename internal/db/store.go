// Package db provides durable storage for job postings and search runs.
//
// Two backends implement Store: SQLite (the default, a single local file) and
// PostgreSQL. Both enforce one row per (external_id, source) with a unique
// constraint so that concurrent upserts of the same identity cannot produce
// duplicates.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/job-monitor/internal/types"
)

// DefaultFetchLimit bounds FetchAll when the caller passes a non-positive limit.
const DefaultFetchLimit = 100

// statsWindow is the trailing window counted by Statistics.RunsLast24h.
const statsWindow = 24 * time.Hour

// Store is the persistence port used by the ingestion pipeline and the CLI.
type Store interface {
	// Upsert records an observation. It returns true when the identity was not
	// stored before. For an existing row only last_seen moves forward.
	Upsert(ctx context.Context, p types.Posting) (bool, error)
	// UpsertBatch applies Upsert to each posting in order. Failures are logged
	// and counted; they never stop the batch.
	UpsertBatch(ctx context.Context, postings []types.Posting) BatchResult
	// FetchNovel returns every posting still flagged novel, newest first. With
	// markConsumed the read and the clearing of the flag are one statement.
	FetchNovel(ctx context.Context, markConsumed bool) ([]types.PersistedPosting, error)
	// FetchAll returns the most recently discovered postings.
	FetchAll(ctx context.Context, limit int) ([]types.PersistedPosting, error)
	// FetchByQuery returns postings whose query contains substr, ignoring case.
	FetchByQuery(ctx context.Context, substr string) ([]types.PersistedPosting, error)
	// RecordRun appends a search run.
	RecordRun(ctx context.Context, query, location string, found int) error
	// Statistics aggregates the stored state.
	Statistics(ctx context.Context) (types.Statistics, error)
	// PurgeOlderThan deletes postings not observed in the last days days.
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
	// Close releases the underlying connections.
	Close() error
}

// BatchResult summarizes an UpsertBatch call.
type BatchResult struct {
	Novel  []types.Posting // newly inserted, in input order
	Seen   int             // already stored, last_seen bumped
	Failed int             // not applied
}

// NovelCount is the number of postings inserted for the first time.
func (r BatchResult) NovelCount() int {
	return len(r.Novel)
}

// Applied is the number of postings the store accepted.
func (r BatchResult) Applied() int {
	return len(r.Novel) + r.Seen
}

// Options configures a store.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Open returns the backend selected by the DSN: postgres:// and postgresql://
// URLs open PostgreSQL, anything else is treated as a SQLite file path
// (an optional sqlite:// prefix is stripped).
func Open(ctx context.Context, dsn string, opts Options) (Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	if IsPostgresDSN(dsn) {
		return OpenPostgres(ctx, dsn, opts)
	}
	return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"), opts)
}

// IsPostgresDSN reports whether dsn selects the PostgreSQL backend.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// upsertBatch is shared by both backends. Novel holds the postings as stored.
func upsertBatch(ctx context.Context, s Store, postings []types.Posting) BatchResult {
	var res BatchResult
	for _, p := range postings {
		p = p.WithDefaults()
		inserted, err := s.Upsert(ctx, p)
		switch {
		case err != nil:
			res.Failed++
		case inserted:
			res.Novel = append(res.Novel, p)
		default:
			res.Seen++
		}
	}
	return res
}

// consumed marks rows returned by a consuming FetchNovel as novel, which is
// what they were when read.
func consumed(postings []types.PersistedPosting) []types.PersistedPosting {
	for i := range postings {
		postings[i].IsNovel = true
	}
	return postings
}

// likePattern builds a contains-pattern with LIKE wildcards in substr escaped.
func likePattern(substr string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(substr) + "%"
}

func purgeCutoff(now time.Time, days int) (time.Time, error) {
	if days < 0 {
		return time.Time{}, fmt.Errorf("days must be non-negative, got %d", days)
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour), nil
}
