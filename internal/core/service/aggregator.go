package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// ExecuteRequest is one classified question ready to run. Plan is nil when
// the mode is document, or when synthesis failed with PlanErr.
type ExecuteRequest struct {
	Question   string
	ConnString string
	Intent     domain.QueryIntent
	Plan       *domain.QueryPlan
	PlanErr    error
}

type AggregatorConfig struct {
	QueryTimeout time.Duration
	TopK         int
}

// Aggregator runs the structured half, the document half, or both, and
// merges hybrid results.
type Aggregator struct {
	conns     *ConnectionManager
	retriever *Retriever
	cfg       AggregatorConfig
	logger    *slog.Logger
}

func NewAggregator(conns *ConnectionManager, retriever *Retriever, cfg AggregatorConfig, logger *slog.Logger) *Aggregator {
	return &Aggregator{conns: conns, retriever: retriever, cfg: cfg, logger: logger}
}

type structuredResult struct {
	query   domain.RenderedQuery
	columns []string
	rows    []domain.Row
	elapsed time.Duration
}

// Execute answers req according to its mode. In hybrid mode one failing
// half degrades to a warning; both failing fails the request.
func (a *Aggregator) Execute(ctx context.Context, req ExecuteRequest) (*domain.ExecutionResult, error) {
	res := &domain.ExecutionResult{Mode: req.Intent.Mode, Intent: &req.Intent}

	switch req.Intent.Mode {
	case domain.ModeSQL:
		sr, err := a.structured(ctx, req)
		if err != nil {
			return nil, err
		}
		a.applyStructured(res, sr)
		return res, nil

	case domain.ModeDocument:
		start := time.Now()
		docs, err := a.documents(ctx, req.Question)
		if err != nil {
			return nil, err
		}
		res.Documents = docs
		res.Timing.Semantic = time.Since(start)
		return res, nil
	}

	return a.hybrid(ctx, req, res)
}

func (a *Aggregator) hybrid(ctx context.Context, req ExecuteRequest, res *domain.ExecutionResult) (*domain.ExecutionResult, error) {
	var (
		sr             *structuredResult
		docs           []domain.DocumentMatch
		sqlErr, docErr error
		docElapsed     time.Duration
	)

	// Each half records its own error so one failure never cancels the other.
	var wg sync.WaitGroup
	wg.Go(func() {
		sr, sqlErr = a.structured(ctx, req)
	})
	wg.Go(func() {
		start := time.Now()
		docs, docErr = a.documents(ctx, req.Question)
		docElapsed = time.Since(start)
	})
	wg.Wait()

	if ctx.Err() != nil {
		return nil, contextError(ctx)
	}
	if sqlErr != nil && docErr != nil {
		return nil, combinedError(sqlErr, docErr)
	}

	res.Timing.Semantic = docElapsed
	if sqlErr != nil {
		res.Warnings = append(res.Warnings, "structured results unavailable: "+errorDetail(sqlErr))
		a.logger.WarnContext(ctx, "hybrid query degraded to documents",
			slog.String("error.type", string(domain.KindOf(sqlErr))),
			slog.String("error", errorDetail(sqlErr)),
		)
	} else {
		a.applyStructured(res, sr)
	}
	if docErr != nil {
		res.Warnings = append(res.Warnings, "document results unavailable: "+errorDetail(docErr))
		a.logger.WarnContext(ctx, "hybrid query degraded to rows",
			slog.String("error.type", string(domain.KindOf(docErr))),
			slog.String("error", errorDetail(docErr)),
		)
		docs = nil
	}

	res.Documents = docs
	correlation := ""
	if req.Plan != nil {
		correlation = req.Plan.CorrelationColumn
	}
	res.Merged = domain.MergeHybrid(res.Rows, correlation, docs)
	return res, nil
}

func (a *Aggregator) applyStructured(res *domain.ExecutionResult, sr *structuredResult) {
	q := sr.query
	res.Query = &q
	res.Columns = sr.columns
	res.Rows = sr.rows
	res.Timing.Structured = sr.elapsed
}

func (a *Aggregator) structured(ctx context.Context, req ExecuteRequest) (*structuredResult, error) {
	if req.PlanErr != nil {
		return nil, req.PlanErr
	}
	if req.Plan == nil {
		return nil, domain.SQLGenerationError("no structured plan for the question")
	}

	pool, err := a.conns.Pool(req.ConnString)
	if err != nil {
		return nil, err
	}
	driver := pool.Driver()
	q, err := domain.Render(req.Plan, driver.Dialect())
	if err != nil {
		return nil, err
	}
	if err := driver.Validate(q.Text); err != nil {
		a.logger.WarnContext(ctx, "query validation rejected",
			slog.String("db.operation.name", "query"),
			slog.String("db.statement", q.Text),
			slog.String("error.type", "validation_error"),
		)
		return nil, domain.SQLGenerationError("generated query failed validation: " + err.Error())
	}

	h, err := a.conns.Acquire(ctx, req.ConnString)
	if err != nil {
		return nil, err
	}

	a.logger.DebugContext(ctx, "executing query",
		slog.String("db.operation.name", "query"),
		slog.String("db.system", string(driver.Dialect().Name())),
		slog.String("db.statement", q.Text),
	)

	qctx := ctx
	if a.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, a.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	rs, err := h.Conn().Execute(qctx, q.Text, q.Args...)
	duration := time.Since(start)

	if err != nil {
		if qctx.Err() != nil {
			h.Discard()
			a.logger.ErrorContext(ctx, "query execution timed out",
				slog.String("db.operation.name", "query"),
				slog.String("db.statement", q.Text),
				slog.Duration("duration", duration),
				slog.String("error.type", string(domain.KindExecutionTimeout)),
			)
			return nil, contextError(qctx)
		}
		h.Release()
		detail := domain.ScrubSecrets(err.Error(), req.ConnString)
		a.logger.ErrorContext(ctx, "query execution failed",
			slog.String("db.operation.name", "query"),
			slog.String("db.statement", q.Text),
			slog.Duration("duration", duration),
			slog.String("error.type", "query_error"),
			slog.String("error", detail),
		)
		return nil, domain.NewError(domain.KindQueryExecution, detail, err)
	}
	h.Release()

	rows := make([]domain.Row, len(rs.Rows))
	for i, r := range rs.Rows {
		rows[i] = r
	}

	a.logger.InfoContext(ctx, "query executed",
		slog.String("db.operation.name", "query"),
		slog.String("db.system", string(driver.Dialect().Name())),
		slog.Int("db.response.rows", len(rows)),
		slog.Duration("duration", duration),
	)
	return &structuredResult{query: q, columns: rs.Columns, rows: rows, elapsed: duration}, nil
}

func (a *Aggregator) documents(ctx context.Context, question string) ([]domain.DocumentMatch, error) {
	if a.retriever == nil {
		return nil, domain.Errorf(domain.KindEmbeddingService, "document search is not configured")
	}
	return a.retriever.Search(ctx, question, a.cfg.TopK, nil)
}

// combinedError keeps the kind of the structured failure and reports both.
func combinedError(sqlErr, docErr error) error {
	out := domain.NewError(domain.KindOf(sqlErr),
		"structured: "+errorDetail(sqlErr)+"; documents: "+errorDetail(docErr),
		errors.Join(sqlErr, docErr))
	out.UnmappedTerms = domain.AsError(sqlErr).UnmappedTerms
	return out
}

func errorDetail(err error) string {
	if d := domain.AsError(err).Detail; d != "" {
		return d
	}
	return err.Error()
}
