package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/job-monitor/internal/types"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		id          BIGSERIAL   PRIMARY KEY,
		external_id TEXT        NOT NULL,
		source      TEXT        NOT NULL,
		title       TEXT        NOT NULL,
		company     TEXT        NOT NULL,
		location    TEXT        NOT NULL,
		url         TEXT        NOT NULL,
		query       TEXT        NOT NULL,
		first_seen  TIMESTAMPTZ NOT NULL,
		last_seen   TIMESTAMPTZ NOT NULL,
		is_novel    BOOLEAN     NOT NULL DEFAULT TRUE,
		CONSTRAINT postings_identity UNIQUE (external_id, source),
		CONSTRAINT postings_seen_order CHECK (first_seen <= last_seen)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_is_novel ON postings (is_novel)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_last_seen ON postings (last_seen)`,
	`CREATE TABLE IF NOT EXISTS search_runs (
		id             BIGSERIAL   PRIMARY KEY,
		query          TEXT        NOT NULL,
		location       TEXT        NOT NULL,
		ran_at         TIMESTAMPTZ NOT NULL,
		postings_found INTEGER     NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_runs_ran_at ON search_runs (ran_at)`,
}

const postgresPostingColumns = `id, external_id, source, title, company, location, url, query, first_seen, last_seen, is_novel`

// PostgresStore is the PostgreSQL-backed Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// OpenPostgres establishes a connection pool, verifies it, and ensures the schema.
func OpenPostgres(ctx context.Context, databaseURL string, opts Options) (*PostgresStore, error) {
	opts = opts.withDefaults()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, stmt := range postgresSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &PostgresStore{
		pool:   pool,
		logger: opts.Logger.With("component", "store", "backend", "postgres"),
		now:    opts.Now,
	}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Upsert inserts a new posting or bumps last_seen of the stored one in a single
// statement. xmax is zero only for a freshly inserted tuple.
func (s *PostgresStore) Upsert(ctx context.Context, p types.Posting) (bool, error) {
	p = p.WithDefaults()
	id := p.Identity()

	var inserted bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO postings (external_id, source, title, company, location, url, query, first_seen, last_seen, is_novel)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, TRUE)
		 ON CONFLICT (external_id, source)
		 DO UPDATE SET last_seen = GREATEST(postings.last_seen, EXCLUDED.last_seen)
		 RETURNING (xmax = 0)`,
		p.ExternalID, p.Source, p.Title, p.Company, p.Location, p.URL, p.Query, s.now(),
	).Scan(&inserted)
	if err != nil {
		return false, fail(s.logger, "upsert", &id, err)
	}
	return inserted, nil
}

// UpsertBatch applies Upsert to each posting in order.
func (s *PostgresStore) UpsertBatch(ctx context.Context, postings []types.Posting) BatchResult {
	return upsertBatch(ctx, s, postings)
}

// FetchNovel returns novel postings, newest first, optionally clearing the flag
// in the same statement.
func (s *PostgresStore) FetchNovel(ctx context.Context, markConsumed bool) ([]types.PersistedPosting, error) {
	query := `SELECT ` + postgresPostingColumns + ` FROM postings WHERE is_novel ORDER BY first_seen DESC, id DESC`
	if markConsumed {
		query = `WITH consumed AS (
			UPDATE postings SET is_novel = FALSE WHERE is_novel RETURNING ` + postgresPostingColumns + `
		)
		SELECT ` + postgresPostingColumns + ` FROM consumed ORDER BY first_seen DESC, id DESC`
	}
	postings, err := s.query(ctx, query)
	if err != nil {
		return nil, fail(s.logger, "fetch_novel", nil, err)
	}
	if markConsumed {
		return consumed(postings), nil
	}
	return postings, nil
}

// FetchAll returns up to limit postings, newest first.
func (s *PostgresStore) FetchAll(ctx context.Context, limit int) ([]types.PersistedPosting, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	postings, err := s.query(ctx,
		`SELECT `+postgresPostingColumns+` FROM postings ORDER BY first_seen DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fail(s.logger, "fetch_all", nil, err)
	}
	return postings, nil
}

// FetchByQuery returns postings whose query contains substr, ignoring case.
func (s *PostgresStore) FetchByQuery(ctx context.Context, substr string) ([]types.PersistedPosting, error) {
	postings, err := s.query(ctx,
		`SELECT `+postgresPostingColumns+` FROM postings WHERE query ILIKE $1 ESCAPE '\' ORDER BY first_seen DESC, id DESC`,
		likePattern(substr))
	if err != nil {
		return nil, fail(s.logger, "fetch_by_query", nil, err)
	}
	return postings, nil
}

// RecordRun appends a search run.
func (s *PostgresStore) RecordRun(ctx context.Context, query, location string, found int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO search_runs (query, location, ran_at, postings_found) VALUES ($1, $2, $3, $4)`,
		query, location, s.now(), found,
	)
	if err != nil {
		return fail(s.logger, "record_run", nil, err)
	}
	return nil
}

// Statistics aggregates totals, novelty, per-source counts and recent runs.
func (s *PostgresStore) Statistics(ctx context.Context) (types.Statistics, error) {
	stats := types.Statistics{BySource: map[string]int{}}

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_novel) FROM postings`,
	).Scan(&stats.Total, &stats.NovelCount)
	if err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}

	rows, err := s.pool.Query(ctx, `SELECT source, COUNT(*) FROM postings GROUP BY source`)
	if err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}
	defer rows.Close()
	for rows.Next() {
		var source string
		var count int
		if err := rows.Scan(&source, &count); err != nil {
			return types.Statistics{}, fail(s.logger, "statistics", nil, err)
		}
		stats.BySource[source] = count
	}
	if err := rows.Err(); err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM search_runs WHERE ran_at > $1`, s.now().Add(-statsWindow),
	).Scan(&stats.RunsLast24h); err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}

	return stats, nil
}

// PurgeOlderThan deletes postings whose last_seen is before now minus days.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff, err := purgeCutoff(s.now(), days)
	if err != nil {
		return 0, fail(s.logger, "purge", nil, err)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM postings WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, fail(s.logger, "purge", nil, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]types.PersistedPosting, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.PersistedPosting, error) {
		var pp types.PersistedPosting
		err := row.Scan(
			&pp.ID, &pp.ExternalID, &pp.Source, &pp.Title, &pp.Company, &pp.Location,
			&pp.URL, &pp.Query, &pp.FirstSeen, &pp.LastSeen, &pp.IsNovel,
		)
		pp.FirstSeen = pp.FirstSeen.UTC()
		pp.LastSeen = pp.LastSeen.UTC()
		return pp, err
	})
}
