package port

import (
	"context"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// HistoryLogger accepts answered questions for asynchronous persistence.
type HistoryLogger interface {
	// Log enqueues an entry for writing. Non-blocking.
	Log(entry domain.HistoryEntry)

	// Close flushes remaining entries and stops the background writer.
	Close()
}

// HistoryRepository stores query history.
type HistoryRepository interface {
	InsertBatch(ctx context.Context, entries []domain.HistoryEntry) error
	// Recent returns up to limit entries, most recent first.
	Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	// Metrics aggregates all entries; RecentQueries counts those after since.
	Metrics(ctx context.Context, since time.Time) (domain.QueryMetrics, error)
	Ping(ctx context.Context) error
}
