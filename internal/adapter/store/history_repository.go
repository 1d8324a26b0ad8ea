// Package store persists query history in a local SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/guillermoBallester/hrquery/internal/adapter/store/migrations"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// HistoryRepository implements port.HistoryRepository on SQLite.
type HistoryRepository struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path and applies
// pending migrations.
func Open(path string) (*HistoryRepository, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &HistoryRepository{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

func (r *HistoryRepository) InsertBatch(ctx context.Context, entries []domain.HistoryEntry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO query_history
			(query_text, query_type, results_count, response_time_us, cache_hit, executed_at_us)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		executedAt := e.ExecutedAt
		if executedAt.IsZero() {
			executedAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			e.QueryText, string(e.QueryType), e.ResultsCount,
			e.ResponseTime.Microseconds(), e.CacheHit, executedAt.UnixMicro())
		if err != nil {
			return fmt.Errorf("inserting history entry: %w", err)
		}
	}
	return tx.Commit()
}

func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, query_text, query_type, results_count, response_time_us, cache_hit, executed_at_us
		FROM query_history
		ORDER BY executed_at_us DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result := make([]domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e                  domain.HistoryEntry
			queryType          string
			responseUs, execUs int64
		)
		if err := rows.Scan(&e.ID, &e.QueryText, &queryType, &e.ResultsCount, &responseUs, &e.CacheHit, &execUs); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		e.QueryType = domain.QueryMode(queryType)
		e.ResponseTime = time.Duration(responseUs) * time.Microsecond
		e.ExecutedAt = time.UnixMicro(execUs).UTC()
		result = append(result, e)
	}
	return result, rows.Err()
}

// Metrics reports CacheHitRate as a percentage of all recorded queries.
func (r *HistoryRepository) Metrics(ctx context.Context, since time.Time) (domain.QueryMetrics, error) {
	var (
		m     domain.QueryMetrics
		avgUs float64
		hits  int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(AVG(response_time_us), 0),
			COALESCE(SUM(cache_hit), 0),
			COALESCE(SUM(CASE WHEN executed_at_us >= ? THEN 1 ELSE 0 END), 0)
		FROM query_history`, since.UnixMicro()).Scan(&m.TotalQueries, &avgUs, &hits, &m.RecentQueries)
	if err != nil {
		return domain.QueryMetrics{}, fmt.Errorf("aggregating history: %w", err)
	}

	m.AvgResponseTime = time.Duration(avgUs * float64(time.Microsecond))
	if m.TotalQueries > 0 {
		m.CacheHitRate = float64(hits) / float64(m.TotalQueries) * 100
	}
	return m, nil
}

func (r *HistoryRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *HistoryRepository) Close() error { return r.db.Close() }
