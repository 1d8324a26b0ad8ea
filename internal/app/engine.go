// Package app assembles the query engine from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/guillermoBallester/hrquery/internal/adapter/audit"
	"github.com/guillermoBallester/hrquery/internal/adapter/database"
	"github.com/guillermoBallester/hrquery/internal/adapter/embedding"
	"github.com/guillermoBallester/hrquery/internal/adapter/extract"
	"github.com/guillermoBallester/hrquery/internal/adapter/jobstore"
	"github.com/guillermoBallester/hrquery/internal/adapter/store"
	"github.com/guillermoBallester/hrquery/internal/adapter/vectorstore"
	"github.com/guillermoBallester/hrquery/internal/config"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
	"github.com/guillermoBallester/hrquery/internal/core/service"
)

const (
	jobRetention = time.Hour
	// cacheWaitMargin lets single-flight waiters outlive the computation
	// they wait on.
	cacheWaitMargin = 500 * time.Millisecond
)

// Engine holds the wired services of one process.
type Engine struct {
	Conns     *service.ConnectionManager
	State     *service.State
	Discovery *service.DiscoveryService
	Query     *service.QueryService
	Ingestion *service.IngestionService
	History   *store.HistoryRepository

	historyLog *audit.BatchLogger
	closers    []func() error
	logger     *slog.Logger
}

// Options tweak assembly for callers that do not need every component.
type Options struct {
	// DriverFactory replaces the scheme-dispatching driver factory.
	DriverFactory port.DriverFactory
}

// New wires the engine described by cfg. The returned Engine must be closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*Engine, error) {
	e := &Engine{logger: logger}

	history, err := store.Open(cfg.HistoryDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening history store: %w", err)
	}
	e.History = history
	e.closers = append(e.closers, history.Close)
	e.historyLog = audit.NewBatchLogger(history, cfg.HistoryFlushInterval, logger.With(slog.String("component", "history")))

	jobs, err := newJobStore(ctx, cfg)
	if err != nil {
		e.Close()
		return nil, err
	}
	if c, ok := jobs.(interface{ Close() error }); ok {
		e.closers = append(e.closers, c.Close)
	}

	embedder := newEmbedder(cfg)
	vectors := newVectorStore(cfg)

	factory := opts.DriverFactory
	if factory == nil {
		factory = database.NewFactory(database.Options{PostgresSchemas: cfg.DBSchemas})
	}
	e.Conns = service.NewConnectionManager(factory, service.ConnectionConfig{
		PoolSize:       cfg.PoolSize,
		AcquireTimeout: cfg.PoolAcquireTimeout,
		IdleTTL:        cfg.PoolIdleTimeout,
		AcquireRetries: cfg.PoolAcquireRetries,
	}, logger.With(slog.String("component", "connections")))

	e.State = service.NewState(func() *service.QueryCache {
		return service.NewQueryCache(cfg.CacheMaxEntries, cfg.CacheTTL, cfg.RequestTimeout+cacheWaitMargin)
	}, logger.With(slog.String("component", "state")))

	e.Discovery = service.NewDiscoveryService(e.Conns, e.State, cfg.SampleRows,
		logger.With(slog.String("component", "discovery")))

	retriever := service.NewRetriever(embedder, vectors, service.RetrieverConfig{
		TopK:          cfg.SearchTopK,
		MinSimilarity: cfg.MinSimilarity,
		Timeout:       cfg.SearchTimeout,
	}, logger.With(slog.String("component", "retriever")))

	aggregator := service.NewAggregator(e.Conns, retriever, service.AggregatorConfig{
		QueryTimeout: cfg.QueryTimeout,
		TopK:         cfg.SearchTopK,
	}, logger.With(slog.String("component", "aggregator")))

	e.Query = service.NewQueryService(service.QueryServiceDeps{
		Discovery:      e.Discovery,
		Classifier:     domain.NewQueryClassifier(domain.DefaultMinConfidence),
		Synthesizer:    domain.NewSynthesizer(cfg.DefaultLimit),
		Aggregator:     aggregator,
		State:          e.State,
		Conns:          e.Conns,
		History:        e.historyLog,
		HistoryRepo:    history,
		RequestTimeout: cfg.RequestTimeout,
	}, logger.With(slog.String("component", "query")))

	e.Ingestion = service.NewIngestionService(extract.New(), embedder, vectors, jobs, service.IngestionConfig{
		Workers:      cfg.IngestWorkers,
		BatchSize:    cfg.EmbeddingBatchSize,
		MaxFileSize:  cfg.MaxFileSize,
		AllowedTypes: cfg.AllowedFileTypes,
	}, logger.With(slog.String("component", "ingestion")))

	logger.Info("engine ready",
		slog.String("embedder", embedder.Model()),
		slog.Bool("chroma", cfg.ChromaURL != ""),
		slog.Bool("redis", cfg.RedisURL != ""),
		slog.String("history_db", cfg.HistoryDBPath),
	)
	return e, nil
}

func newJobStore(ctx context.Context, cfg *config.Config) (port.JobStore, error) {
	if cfg.RedisURL == "" {
		return jobstore.NewMemory(jobRetention), nil
	}
	r, err := jobstore.NewRedis(ctx, cfg.RedisURL, jobRetention)
	if err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return r, nil
}

func newEmbedder(cfg *config.Config) port.Embedder {
	if cfg.EmbeddingURL == "" {
		return embedding.NewHashingEmbedder(cfg.EmbeddingDimensions)
	}
	return embedding.NewHTTPEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel,
		embedding.WithAPIKey(cfg.EmbeddingAPIKey),
		embedding.WithBatchSize(cfg.EmbeddingBatchSize),
	)
}

func newVectorStore(cfg *config.Config) port.VectorStore {
	if cfg.ChromaURL == "" {
		return vectorstore.NewMemory()
	}
	return vectorstore.NewChroma(cfg.ChromaURL, cfg.ChromaCollection)
}

// Close stops ingestion, flushes history and releases every connection, in
// that order.
func (e *Engine) Close() {
	if e.Ingestion != nil {
		e.Ingestion.Close()
	}
	if e.historyLog != nil {
		e.historyLog.Close()
		e.historyLog = nil
	}
	if e.State != nil {
		e.State.Close()
	}
	if e.Conns != nil {
		e.Conns.Close()
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("closing engine resource", slog.String("error", err.Error()))
		}
	}
	e.closers = nil
}
