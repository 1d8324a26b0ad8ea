package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- mock Conn ---

type mockConn struct {
	info    port.DatabaseInfo
	tables  []port.TableInfo
	details map[string]*port.TableDetail
	samples map[string][]map[string]any

	executeFn func(ctx context.Context, query string, args ...any) (*port.ResultSet, error)
	pingErr   error
	listErr   error

	pings  atomic.Int32
	closed atomic.Bool
}

func (c *mockConn) DatabaseInfo(context.Context) (port.DatabaseInfo, error) { return c.info, nil }

func (c *mockConn) ListTables(context.Context) ([]port.TableInfo, error) {
	return c.tables, c.listErr
}

func (c *mockConn) DescribeTable(_ context.Context, table string) (*port.TableDetail, error) {
	d, ok := c.details[table]
	if !ok {
		return nil, errors.New("no such table")
	}
	return d, nil
}

func (c *mockConn) SampleRows(_ context.Context, table string, limit int) ([]map[string]any, error) {
	rows := c.samples[table]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (c *mockConn) Execute(ctx context.Context, query string, args ...any) (*port.ResultSet, error) {
	if c.executeFn == nil {
		return &port.ResultSet{}, nil
	}
	return c.executeFn(ctx, query, args...)
}

func (c *mockConn) Ping(context.Context) error {
	c.pings.Add(1)
	return c.pingErr
}

func (c *mockConn) Close(context.Context) error {
	c.closed.Store(true)
	return nil
}

// --- mock Driver ---

type mockDriver struct {
	dialect    domain.Dialect
	connectFn  func(ctx context.Context) (port.Conn, error)
	validateFn func(query string) error

	connects atomic.Int32
	closed   atomic.Bool
}

func (d *mockDriver) Dialect() domain.Dialect {
	if d.dialect == nil {
		return domain.DialectFor(domain.DialectPostgres)
	}
	return d.dialect
}

func (d *mockDriver) Connect(ctx context.Context) (port.Conn, error) {
	d.connects.Add(1)
	return d.connectFn(ctx)
}

func (d *mockDriver) Validate(query string) error {
	if d.validateFn == nil {
		return nil
	}
	return d.validateFn(query)
}

func (d *mockDriver) Close() error {
	d.closed.Store(true)
	return nil
}

// driverFor returns a driver handing out conn on every Connect.
func driverFor(conn *mockConn) *mockDriver {
	return &mockDriver{connectFn: func(context.Context) (port.Conn, error) { return conn, nil }}
}

// freshConns returns a driver dialing a new mockConn each time.
func freshConns() *mockDriver {
	return &mockDriver{connectFn: func(context.Context) (port.Conn, error) { return &mockConn{}, nil }}
}

func factoryFor(d port.Driver) port.DriverFactory {
	return func(string) (port.Driver, error) { return d, nil }
}

func testConnConfig() ConnectionConfig {
	return ConnectionConfig{
		PoolSize:       2,
		AcquireTimeout: 50 * time.Millisecond,
		AcquireRetries: 1,
		RetryBackoff:   5 * time.Millisecond,
	}
}

const testConnString = "postgres://hr:secret@db:5432/hr"

// hrConn serves an employees/departments catalog with an undeclared
// dept_id relation.
func hrConn() *mockConn {
	return &mockConn{
		info: port.DatabaseInfo{Name: "hr", Version: "16.2", Schema: "public"},
		tables: []port.TableInfo{
			{Schema: "public", Name: "departments", RowEstimate: 2},
			{Schema: "public", Name: "employees", RowEstimate: 3},
		},
		details: map[string]*port.TableDetail{
			"departments": {Name: "departments", Columns: []port.ColumnInfo{
				{Name: "id", DataType: "integer", IsPrimaryKey: true},
				{Name: "name", DataType: "text"},
			}},
			"employees": {Name: "employees", Columns: []port.ColumnInfo{
				{Name: "id", DataType: "integer", IsPrimaryKey: true},
				{Name: "first_name", DataType: "text"},
				{Name: "last_name", DataType: "text"},
				{Name: "dept_id", DataType: "integer", IsNullable: true},
				{Name: "salary", DataType: "numeric"},
				{Name: "hire_date", DataType: "date"},
			}},
		},
		samples: map[string][]map[string]any{
			"departments": {{"id": int64(1), "name": "Engineering"}, {"id": int64(2), "name": "Finance"}},
			"employees": {
				{"id": int64(1), "first_name": "Ada", "last_name": "Lovelace", "dept_id": int64(1), "salary": 120000.0},
			},
		},
	}
}

// --- mock Embedder ---

type mockEmbedder struct {
	mu      sync.Mutex
	calls   int
	inputs  [][]string
	err     error
	onEmbed func()
}

func (e *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.onEmbed != nil {
		e.onEmbed()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.inputs = append(e.inputs, texts)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *mockEmbedder) Model() string { return "mock" }

// --- mock VectorStore ---

type mockStore struct {
	mu       sync.Mutex
	upserted []port.ChunkRecord
	matches  []domain.DocumentMatch
	searchFn func(ctx context.Context) error
	upsertFn func(records []port.ChunkRecord) error
}

func (s *mockStore) Upsert(_ context.Context, records []port.ChunkRecord) error {
	if s.upsertFn != nil {
		if err := s.upsertFn(records); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserted = append(s.upserted, records...)
	return nil
}

func (s *mockStore) Search(ctx context.Context, _ []float32, topK int, _ map[string]string) ([]domain.DocumentMatch, error) {
	if s.searchFn != nil {
		if err := s.searchFn(ctx); err != nil {
			return nil, err
		}
	}
	out := append([]domain.DocumentMatch(nil), s.matches...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (s *mockStore) records() []port.ChunkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]port.ChunkRecord(nil), s.upserted...)
}

func resumeMatch(chunkID, employeeID string, sim float64) domain.DocumentMatch {
	return domain.DocumentMatch{
		ChunkID:    chunkID,
		Similarity: sim,
		Content:    "Senior engineer, Python and Go",
		Source:     domain.SourceMetadata{DocumentID: "doc-" + chunkID, Filename: "resume.pdf", FileType: "pdf", EmployeeID: employeeID},
	}
}

// --- mock TextExtractor ---

type mockExtractor struct{}

func (mockExtractor) Extract(_ context.Context, filename string, data []byte) (string, string, error) {
	if strings.HasPrefix(string(data), "corrupt") {
		return "", "", errors.New("unreadable file")
	}
	ext := filename[strings.LastIndex(filename, ".")+1:]
	return string(data), ext, nil
}

// --- mock JobStore ---

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.IngestionJob
	seen []domain.JobStatus
}

func newMemJobs() *memJobs { return &memJobs{jobs: make(map[string]*domain.IngestionJob)} }

func (m *memJobs) Save(_ context.Context, job *domain.IngestionJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n := len(m.seen); n == 0 || m.seen[n-1] != job.Status {
		m.seen = append(m.seen, job.Status)
	}
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *memJobs) Get(_ context.Context, id string) (*domain.IngestionJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "job %q not found", id)
	}
	return j.Clone(), nil
}

// --- mock history ---

type mockHistory struct {
	mu      sync.Mutex
	entries []domain.HistoryEntry
}

func (h *mockHistory) Log(e domain.HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
}

func (h *mockHistory) Close() {}

func (h *mockHistory) logged() []domain.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.HistoryEntry(nil), h.entries...)
}
