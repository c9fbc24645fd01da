package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jonathan/job-monitor/internal/types"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Timestamps are INTEGER microseconds since the Unix epoch.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS postings (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		external_id TEXT    NOT NULL,
		source      TEXT    NOT NULL,
		title       TEXT    NOT NULL,
		company     TEXT    NOT NULL,
		location    TEXT    NOT NULL,
		url         TEXT    NOT NULL,
		query       TEXT    NOT NULL,
		first_seen  INTEGER NOT NULL,
		last_seen   INTEGER NOT NULL,
		is_novel    INTEGER NOT NULL DEFAULT 1,
		UNIQUE (external_id, source),
		CHECK (first_seen <= last_seen)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_is_novel ON postings (is_novel)`,
	`CREATE INDEX IF NOT EXISTS idx_postings_last_seen ON postings (last_seen)`,
	`CREATE TABLE IF NOT EXISTS search_runs (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		query          TEXT    NOT NULL,
		location       TEXT    NOT NULL,
		ran_at         INTEGER NOT NULL,
		postings_found INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_search_runs_ran_at ON search_runs (ran_at)`,
}

const sqlitePostingColumns = `id, external_id, source, title, company, location, url, query, first_seen, last_seen, is_novel`

// SQLiteStore is the file-backed Store.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	// SQLite allows one writer; a single connection serializes access
	// and keeps per-connection pragmas in effect.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping sqlite database %s: %w", path, err)
	}

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
	} {
		if _, err := sqlDB.ExecContext(ctx, pragma); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	for _, stmt := range sqliteSchema {
		if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{
		db:     sqlDB,
		logger: opts.Logger.With("component", "store", "backend", "sqlite"),
		now:    opts.Now,
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert inserts a new posting or bumps last_seen of the stored one.
func (s *SQLiteStore) Upsert(ctx context.Context, p types.Posting) (bool, error) {
	p = p.WithDefaults()
	id := p.Identity()
	now := s.now().UnixMicro()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fail(s.logger, "upsert", &id, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO postings (external_id, source, title, company, location, url, query, first_seen, last_seen, is_novel)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		 ON CONFLICT (external_id, source) DO NOTHING`,
		p.ExternalID, p.Source, p.Title, p.Company, p.Location, p.URL, p.Query, now, now,
	)
	if err != nil {
		return false, fail(s.logger, "upsert", &id, err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, fail(s.logger, "upsert", &id, err)
	}

	if inserted == 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE postings SET last_seen = MAX(last_seen, ?) WHERE external_id = ? AND source = ?`,
			now, p.ExternalID, p.Source,
		); err != nil {
			return false, fail(s.logger, "upsert", &id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fail(s.logger, "upsert", &id, err)
	}
	return inserted == 1, nil
}

// UpsertBatch applies Upsert to each posting in order.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, postings []types.Posting) BatchResult {
	return upsertBatch(ctx, s, postings)
}

// FetchNovel returns novel postings, newest first, optionally clearing the flag.
// SQLite cannot order RETURNING rows, so consumed rows are sorted here.
func (s *SQLiteStore) FetchNovel(ctx context.Context, markConsumed bool) ([]types.PersistedPosting, error) {
	if !markConsumed {
		postings, err := s.query(ctx,
			`SELECT `+sqlitePostingColumns+` FROM postings WHERE is_novel = 1 ORDER BY first_seen DESC, id DESC`)
		if err != nil {
			return nil, fail(s.logger, "fetch_novel", nil, err)
		}
		return postings, nil
	}

	postings, err := s.query(ctx,
		`UPDATE postings SET is_novel = 0 WHERE is_novel = 1 RETURNING `+sqlitePostingColumns)
	if err != nil {
		return nil, fail(s.logger, "fetch_novel", nil, err)
	}
	sortNewestFirst(postings)
	return consumed(postings), nil
}

// FetchAll returns up to limit postings, newest first.
func (s *SQLiteStore) FetchAll(ctx context.Context, limit int) ([]types.PersistedPosting, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	postings, err := s.query(ctx,
		`SELECT `+sqlitePostingColumns+` FROM postings ORDER BY first_seen DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fail(s.logger, "fetch_all", nil, err)
	}
	return postings, nil
}

// FetchByQuery returns postings whose query contains substr. SQLite LIKE is
// case-insensitive for ASCII.
func (s *SQLiteStore) FetchByQuery(ctx context.Context, substr string) ([]types.PersistedPosting, error) {
	postings, err := s.query(ctx,
		`SELECT `+sqlitePostingColumns+` FROM postings WHERE query LIKE ? ESCAPE '\' ORDER BY first_seen DESC, id DESC`,
		likePattern(substr))
	if err != nil {
		return nil, fail(s.logger, "fetch_by_query", nil, err)
	}
	return postings, nil
}

// RecordRun appends a search run.
func (s *SQLiteStore) RecordRun(ctx context.Context, query, location string, found int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_runs (query, location, ran_at, postings_found) VALUES (?, ?, ?, ?)`,
		query, location, s.now().UnixMicro(), found,
	)
	if err != nil {
		return fail(s.logger, "record_run", nil, err)
	}
	return nil
}

// Statistics aggregates totals, novelty, per-source counts and recent runs.
func (s *SQLiteStore) Statistics(ctx context.Context) (types.Statistics, error) {
	stats := types.Statistics{BySource: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(is_novel), 0) FROM postings`,
	).Scan(&stats.Total, &stats.NovelCount)
	if err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM postings GROUP BY source`)
	if err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}
	defer func() { _ = rows.Close() }()
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

	since := s.now().Add(-statsWindow).UnixMicro()
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM search_runs WHERE ran_at > ?`, since,
	).Scan(&stats.RunsLast24h); err != nil {
		return types.Statistics{}, fail(s.logger, "statistics", nil, err)
	}

	return stats, nil
}

// PurgeOlderThan deletes postings whose last_seen is before now minus days.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff, err := purgeCutoff(s.now(), days)
	if err != nil {
		return 0, fail(s.logger, "purge", nil, err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM postings WHERE last_seen < ?`, cutoff.UnixMicro())
	if err != nil {
		return 0, fail(s.logger, "purge", nil, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail(s.logger, "purge", nil, err)
	}
	return n, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...any) ([]types.PersistedPosting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var postings []types.PersistedPosting
	for rows.Next() {
		var (
			pp                  types.PersistedPosting
			firstSeen, lastSeen int64
			isNovel             int
		)
		if err := rows.Scan(
			&pp.ID, &pp.ExternalID, &pp.Source, &pp.Title, &pp.Company, &pp.Location,
			&pp.URL, &pp.Query, &firstSeen, &lastSeen, &isNovel,
		); err != nil {
			return nil, err
		}
		pp.FirstSeen = time.UnixMicro(firstSeen).UTC()
		pp.LastSeen = time.UnixMicro(lastSeen).UTC()
		pp.IsNovel = isNovel != 0
		postings = append(postings, pp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return postings, nil
}

func sortNewestFirst(postings []types.PersistedPosting) {
	sort.SliceStable(postings, func(i, j int) bool {
		if !postings[i].FirstSeen.Equal(postings[j].FirstSeen) {
			return postings[i].FirstSeen.After(postings[j].FirstSeen)
		}
		return postings[i].ID > postings[j].ID
	})
}
