package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 100
	recentWindow        = time.Hour
)

// QueryService answers natural-language questions: classify, plan, execute,
// cache and record.
type QueryService struct {
	discovery      *DiscoveryService
	classifier     *domain.QueryClassifier
	synthesizer    *domain.Synthesizer
	aggregator     *Aggregator
	state          *State
	conns          *ConnectionManager
	history        port.HistoryLogger
	historyRepo    port.HistoryRepository
	requestTimeout time.Duration
	logger         *slog.Logger
}

type QueryServiceDeps struct {
	Discovery      *DiscoveryService
	Classifier     *domain.QueryClassifier
	Synthesizer    *domain.Synthesizer
	Aggregator     *Aggregator
	State          *State
	Conns          *ConnectionManager
	History        port.HistoryLogger
	HistoryRepo    port.HistoryRepository
	RequestTimeout time.Duration
}

func NewQueryService(deps QueryServiceDeps, logger *slog.Logger) *QueryService {
	return &QueryService{
		discovery:      deps.Discovery,
		classifier:     deps.Classifier,
		synthesizer:    deps.Synthesizer,
		aggregator:     deps.Aggregator,
		state:          deps.State,
		conns:          deps.Conns,
		history:        deps.History,
		historyRepo:    deps.HistoryRepo,
		requestTimeout: deps.RequestTimeout,
		logger:         logger,
	}
}

// Ask answers question against the database of connString.
func (s *QueryService) Ask(ctx context.Context, question, connString string) (*domain.ExecutionResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "question must not be empty")
	}
	if strings.TrimSpace(connString) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "connection string must not be empty")
	}

	start := time.Now()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	g, err := s.discovery.GraphFor(ctx, connString)
	if err != nil {
		return nil, s.fail(ctx, question, err)
	}

	compute := func(cctx context.Context) (*domain.ExecutionResult, error) {
		return s.answer(cctx, question, connString, g)
	}

	var res *domain.ExecutionResult
	if cache := s.state.Cache(); cache != nil {
		key := CacheKey{Question: question, Version: g.Version, ConnectionID: g.ConnectionID}
		res, err = cache.GetOrCompute(ctx, key, compute)
	} else {
		res, err = compute(ctx)
	}
	if err != nil {
		return nil, s.fail(ctx, question, err)
	}

	res.Timing.Total = time.Since(start)
	s.record(question, res)
	s.logger.InfoContext(ctx, "question answered",
		slog.String("query_type", string(res.Mode)),
		slog.Bool("cache_hit", res.CacheHit),
		slog.Int("results", res.ResultCount()),
		slog.Int("warnings", len(res.Warnings)),
		slog.Duration("duration", res.Timing.Total),
	)
	return res, nil
}

func (s *QueryService) answer(ctx context.Context, question, connString string, g *domain.SchemaGraph) (*domain.ExecutionResult, error) {
	intent := s.classifier.Classify(question, g)
	if intent.Ambiguous {
		s.logger.DebugContext(ctx, "ambiguous question routed to hybrid",
			slog.String("error.type", string(domain.KindAmbiguousQuery)),
			slog.Float64("confidence", intent.Confidence),
		)
	}

	req := ExecuteRequest{Question: question, ConnString: connString, Intent: intent}
	if intent.Mode != domain.ModeDocument {
		req.Plan, req.PlanErr = s.synthesizer.Synthesize(intent, g)
	}
	return s.aggregator.Execute(ctx, req)
}

func (s *QueryService) fail(ctx context.Context, question string, err error) error {
	if ctx.Err() != nil && domain.KindOf(err) != domain.KindExecutionTimeout {
		err = contextError(ctx)
	}
	s.logger.WarnContext(ctx, "question failed",
		slog.Int("question.length", len(question)),
		slog.String("error.type", string(domain.KindOf(err))),
		slog.String("error", err.Error()),
	)
	return err
}

func (s *QueryService) record(question string, res *domain.ExecutionResult) {
	if s.history == nil {
		return
	}
	s.history.Log(domain.HistoryEntry{
		QueryText:    question,
		QueryType:    res.Mode,
		ResultsCount: res.ResultCount(),
		ResponseTime: res.Timing.Total,
		CacheHit:     res.CacheHit,
		ExecutedAt:   time.Now().UTC(),
	})
}

// History returns recorded questions newest first. limit is clamped to
// [1, MaxHistoryLimit]; zero means DefaultHistoryLimit.
func (s *QueryService) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	switch {
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit < 0:
		return nil, domain.Errorf(domain.KindInvalidInput, "limit must be positive")
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	if s.historyRepo == nil {
		return []domain.HistoryEntry{}, nil
	}
	return s.historyRepo.Recent(ctx, limit)
}

// Metrics aggregates recorded history and current pool usage.
func (s *QueryService) Metrics(ctx context.Context) (domain.QueryMetrics, error) {
	var m domain.QueryMetrics
	if s.historyRepo != nil {
		var err error
		m, err = s.historyRepo.Metrics(ctx, time.Now().UTC().Add(-recentWindow))
		if err != nil {
			return domain.QueryMetrics{}, err
		}
	}
	if s.conns != nil {
		st := s.conns.Stats()
		m.ActiveConnections = st.Active
		m.IdleConnections = st.Idle
	}
	return m, nil
}

// ResetCache empties the query cache.
func (s *QueryService) ResetCache() {
	s.state.Reset()
	s.logger.Info("query cache reset")
}
