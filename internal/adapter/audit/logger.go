// Package audit writes answered questions to the history repository off the
// request path.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

const (
	defaultBatchSize     = 50
	defaultFlushInterval = 5 * time.Second
	defaultChanBuffer    = 1000
	flushTimeout         = 10 * time.Second
)

// BatchLogger implements port.HistoryLogger using a buffered channel and
// a background goroutine that batch-inserts entries into the repository.
type BatchLogger struct {
	repo          port.HistoryRepository
	ch            chan domain.HistoryEntry
	done          chan struct{}
	flushInterval time.Duration
	logger        *slog.Logger
}

// NewBatchLogger creates a BatchLogger. The background goroutine flushes
// when the batch is full or flushInterval elapses, whichever comes first.
// A non-positive interval uses the default.
func NewBatchLogger(repo port.HistoryRepository, flushInterval time.Duration, logger *slog.Logger) *BatchLogger {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	l := &BatchLogger{
		repo:          repo,
		ch:            make(chan domain.HistoryEntry, defaultChanBuffer),
		done:          make(chan struct{}),
		flushInterval: flushInterval,
		logger:        logger,
	}
	go l.run()
	return l
}

// Log enqueues an entry. Non-blocking; drops the entry if the channel is full.
func (l *BatchLogger) Log(entry domain.HistoryEntry) {
	select {
	case l.ch <- entry:
	default:
		l.logger.Warn("history channel full, dropping entry",
			slog.String("query_type", string(entry.QueryType)),
		)
	}
}

// Close flushes what is buffered and waits for the writer to exit.
func (l *BatchLogger) Close() {
	close(l.ch)
	<-l.done
}

func (l *BatchLogger) run() {
	defer close(l.done)

	batch := make([]domain.HistoryEntry, 0, defaultBatchSize)
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry, ok := <-l.ch:
			if !ok {
				if len(batch) > 0 {
					l.flush(batch)
				}
				return
			}
			batch = append(batch, entry)
			if len(batch) >= defaultBatchSize {
				l.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (l *BatchLogger) flush(batch []domain.HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := l.repo.InsertBatch(ctx, batch); err != nil {
		l.logger.Error("failed to flush history batch",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
	}
}
