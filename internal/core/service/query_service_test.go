package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

type mockHistoryRepo struct {
	metrics   domain.QueryMetrics
	recent    []domain.HistoryEntry
	lastLimit int
}

func (r *mockHistoryRepo) InsertBatch(context.Context, []domain.HistoryEntry) error { return nil }

func (r *mockHistoryRepo) Recent(_ context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.lastLimit = limit
	return r.recent, nil
}

func (r *mockHistoryRepo) Metrics(context.Context, time.Time) (domain.QueryMetrics, error) {
	return r.metrics, nil
}

func (r *mockHistoryRepo) Ping(context.Context) error { return nil }

type queryFixture struct {
	svc      *QueryService
	conn     *mockConn
	history  *mockHistory
	repo     *mockHistoryRepo
	executes atomic.Int32
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	f := &queryFixture{conn: hrConn(), history: &mockHistory{}, repo: &mockHistoryRepo{}}
	f.conn.executeFn = func(context.Context, string, ...any) (*port.ResultSet, error) {
		f.executes.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &port.ResultSet{Columns: []string{"count"}, Rows: []map[string]any{{"count": int64(3)}}}, nil
	}

	cfg := testConnConfig()
	cfg.PoolSize = 4
	conns := NewConnectionManager(factoryFor(driverFor(f.conn)), cfg, testLogger())
	t.Cleanup(conns.Close)

	state := NewState(func() *QueryCache { return NewQueryCache(100, time.Minute, time.Second) }, testLogger())
	t.Cleanup(state.Close)

	retriever := NewRetriever(&mockEmbedder{}, &mockStore{}, RetrieverConfig{MinSimilarity: 0.2}, testLogger())
	f.svc = NewQueryService(QueryServiceDeps{
		Discovery:      NewDiscoveryService(conns, state, 5, testLogger()),
		Classifier:     domain.NewQueryClassifier(domain.DefaultMinConfidence),
		Synthesizer:    domain.NewSynthesizer(100),
		Aggregator:     NewAggregator(conns, retriever, AggregatorConfig{QueryTimeout: time.Second}, testLogger()),
		State:          state,
		Conns:          conns,
		History:        f.history,
		HistoryRepo:    f.repo,
		RequestTimeout: 2 * time.Second,
	}, testLogger())
	return f
}

func TestQueryService_AskCountsEmployees(t *testing.T) {
	f := newQueryFixture(t)

	res, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)

	assert.Equal(t, domain.ModeSQL, res.Mode)
	assert.False(t, res.CacheHit)
	assert.Positive(t, res.Timing.Total)
	require.NotNil(t, res.Query)
	assert.Equal(t, `SELECT COUNT(*) AS "count" FROM "employees" AS t0`, res.Query.Text)

	entries := f.history.logged()
	require.Len(t, entries, 1)
	assert.Equal(t, "How many employees do we have?", entries[0].QueryText)
	assert.Equal(t, domain.ModeSQL, entries[0].QueryType)
	assert.Equal(t, 1, entries[0].ResultsCount)
}

func TestQueryService_SecondAskIsCacheHit(t *testing.T) {
	f := newQueryFixture(t)

	first, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)
	second, err := f.svc.Ask(context.Background(), "how many employees do we have", testConnString)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Rows, second.Rows)
	assert.Equal(t, first.Query, second.Query)
	assert.Equal(t, int32(1), f.executes.Load())

	entries := f.history.logged()
	require.Len(t, entries, 2)
	assert.True(t, entries[1].CacheHit)
}

func TestQueryService_ConcurrentAsksShareExecution(t *testing.T) {
	f := newQueryFixture(t)
	// discover first so every caller sees the same schema version
	_, err := f.svc.discovery.Discover(context.Background(), testConnString)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.executes.Load())
}

func TestQueryService_RediscoveryInvalidates(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)
	_, err = f.svc.discovery.Discover(context.Background(), testConnString)
	require.NoError(t, err)
	res, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)

	assert.False(t, res.CacheHit)
	assert.Equal(t, int32(2), f.executes.Load())
}

func TestQueryService_UnmappableQuestion(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Ask(context.Background(), "Average altitude by galaxy", testConnString)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSQLGeneration)
	assert.NotEmpty(t, domain.AsError(err).UnmappedTerms)
	assert.Empty(t, f.history.logged())
}

func TestQueryService_RejectsEmptyInput(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Ask(context.Background(), "   ", testConnString)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.Ask(context.Background(), "How many employees?", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryService_ResetCache(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)
	f.svc.ResetCache()
	res, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)

	assert.False(t, res.CacheHit)
	assert.Equal(t, int32(2), f.executes.Load())
}

func TestQueryService_HistoryLimits(t *testing.T) {
	f := newQueryFixture(t)

	_, err := f.svc.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultHistoryLimit, f.repo.lastLimit)

	_, err = f.svc.History(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, MaxHistoryLimit, f.repo.lastLimit)

	_, err = f.svc.History(context.Background(), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryService_MetricsIncludePoolUsage(t *testing.T) {
	f := newQueryFixture(t)
	f.repo.metrics = domain.QueryMetrics{TotalQueries: 7, CacheHitRate: 42.86}

	_, err := f.svc.Ask(context.Background(), "How many employees do we have?", testConnString)
	require.NoError(t, err)

	m, err := f.svc.Metrics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.TotalQueries)
	assert.Equal(t, 0, m.ActiveConnections)
	assert.Equal(t, 1, m.IdleConnections)
}
