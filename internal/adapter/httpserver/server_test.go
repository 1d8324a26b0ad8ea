package httpserver

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/guillermoBallester/hrquery/internal/app"
	"github.com/guillermoBallester/hrquery/internal/config"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

const hrSchema = `
	CREATE TABLE departments (
		id   INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	);
	CREATE TABLE employees (
		id            INTEGER PRIMARY KEY,
		first_name    TEXT NOT NULL,
		department_id INTEGER REFERENCES departments(id),
		salary        REAL NOT NULL
	);
	INSERT INTO departments (id, name) VALUES (1, 'Engineering'), (2, 'Finance');
	INSERT INTO employees (id, first_name, department_id, salary) VALUES
		(1, 'Ada', 1, 120000),
		(2, 'Grace', 1, 135000),
		(3, 'Alan', 2, 98000);
`

type testEnv struct {
	ts     *httptest.Server
	engine *app.Engine
	db     string
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "hr.db")
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(hrSchema)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := &config.Config{
		PoolSize:             2,
		PoolAcquireTimeout:   time.Second,
		QueryTimeout:         2 * time.Second,
		SearchTimeout:        2 * time.Second,
		RequestTimeout:       5 * time.Second,
		DefaultLimit:         100,
		SampleRows:           2,
		CacheTTL:             time.Minute,
		CacheMaxEntries:      100,
		EmbeddingDimensions:  256,
		EmbeddingBatchSize:   8,
		HistoryDBPath:        filepath.Join(dir, "history.db"),
		HistoryFlushInterval: 10 * time.Millisecond,
		MaxFileSize:          1 << 20,
		AllowedFileTypes:     []string{".pdf", ".docx", ".txt", ".csv"},
		IngestWorkers:        1,
		SearchTopK:           5,
	}
	engine, err := app.New(context.Background(), cfg, testLogger(), app.Options{})
	require.NoError(t, err)

	srv := New(Config{MaxUploadBytes: 4 << 20}, Services{
		Query:     engine.Query,
		Discovery: engine.Discovery,
		Ingestion: engine.Ingestion,
		History:   engine.History,
	}, testLogger())
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		ts.Close()
		engine.Close()
	})
	return &testEnv{ts: ts, engine: engine, db: "sqlite://" + dbPath}
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	resp, err := http.PostForm(e.ts.URL+"/api/ingest/database", url.Values{"connection_string": {e.db}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func (e *testEnv) ask(t *testing.T, question string) (*http.Response, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(queryRequest{Query: question, ConnectionString: e.db})
	resp, err := http.Post(e.ts.URL+"/api/query", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func decodeError(t *testing.T, resp *http.Response) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error
}

func TestHealthAndReady(t *testing.T) {
	env := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestConnectDatabase(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.PostForm(env.ts.URL+"/api/ingest/database", url.Values{"connection_string": {env.db}})
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body connectResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "success", body.Status)
	assert.Equal(t, 2, body.Schema.TablesCount)
	assert.Equal(t, 1, body.Schema.RelationshipsCount)
	assert.Equal(t, []string{"employees"}, body.Schema.EmployeeTables)
	assert.Equal(t, []string{"departments"}, body.Schema.DepartmentTables)
	assert.Equal(t, "hr", body.Schema.DatabaseInfo.Name)
}

func TestConnectDatabase_JSONBody(t *testing.T) {
	env := newTestServer(t)

	body, _ := json.Marshal(connectRequest{ConnectionString: env.db})
	resp, err := http.Post(env.ts.URL+"/api/ingest/database", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestConnectDatabase_Errors(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name       string
		connString string
		wantStatus int
		wantKind   domain.ErrorKind
	}{
		{"missing", "", http.StatusBadRequest, domain.KindInvalidInput},
		{"unsupported scheme", "oracle://scott:tiger@db/hr", http.StatusBadRequest, domain.KindInvalidInput},
		{"missing file", "sqlite://" + filepath.Join(t.TempDir(), "nope.db"), http.StatusBadGateway, domain.KindConnection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.PostForm(env.ts.URL+"/api/ingest/database", url.Values{"connection_string": {tt.connString}})
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			detail := decodeError(t, resp)
			assert.Equal(t, tt.wantKind, detail.Kind)
			assert.NotContains(t, detail.Detail, "tiger")
		})
	}
}

func TestSchemaEndpoints(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/api/schema")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "nothing connected yet")

	env.connect(t)

	resp, err = http.Get(env.ts.URL + "/api/schema")
	require.NoError(t, err)
	var summary domain.SchemaSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	resp.Body.Close()
	assert.Equal(t, 2, summary.TablesCount)

	resp, err = http.Get(env.ts.URL + "/api/schema/visualize")
	require.NoError(t, err)
	var vis domain.SchemaVisualization
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&vis))
	resp.Body.Close()
	assert.Len(t, vis.Nodes, 2)
	require.Len(t, vis.Links, 1)
	assert.Equal(t, "employees", vis.Links[0].Source)
	assert.Equal(t, "departments", vis.Links[0].Target)

	resp, err = http.Get(env.ts.URL + "/api/schema/tables/employees")
	require.NoError(t, err)
	var table domain.Table
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&table))
	resp.Body.Close()
	assert.Equal(t, domain.PurposeEmployee, table.Purpose)
	assert.Len(t, table.SampleRows, 2)

	resp, err = http.Get(env.ts.URL + "/api/schema/tables/payroll")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, domain.KindNotFound, decodeError(t, resp).Kind)
}

func TestQuery_CountAndCache(t *testing.T) {
	env := newTestServer(t)
	env.connect(t)

	resp, out := env.ask(t, "How many employees do we have?")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sql", out["query_type"])
	assert.Equal(t, false, out["cache_hit"])
	assert.Contains(t, out["sql_generated"], "COUNT(*)")
	results, ok := out["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, float64(3), results[0].(map[string]any)["count"])

	_, again := env.ask(t, "How many employees do we have?")
	assert.Equal(t, true, again["cache_hit"])

	resp, err := http.Post(env.ts.URL+"/api/query/cache/reset", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, afterReset := env.ask(t, "How many employees do we have?")
	assert.Equal(t, false, afterReset["cache_hit"])
}

func TestQuery_InvalidInput(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/api/query", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, out := env.ask(t, "   ")
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, string(domain.KindInvalidInput), out["error"].(map[string]any)["kind"])
}

func TestHistoryAndMetrics(t *testing.T) {
	env := newTestServer(t)
	env.connect(t)

	env.ask(t, "How many employees do we have?")
	env.ask(t, "How many employees do we have?")

	var history struct {
		Queries []historyItem `json:"queries"`
	}
	require.Eventually(t, func() bool {
		resp, err := http.Get(env.ts.URL + "/api/query/history?limit=5")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&history) == nil && len(history.Queries) == 2
	}, 2*time.Second, 20*time.Millisecond)
	assert.True(t, history.Queries[0].CacheHit, "newest first")
	assert.Equal(t, domain.ModeSQL, history.Queries[0].QueryType)

	resp, err := http.Get(env.ts.URL + "/api/query/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var m metricsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, int64(2), m.TotalQueries)
	assert.Equal(t, int64(2), m.RecentQueries)
	assert.Equal(t, 50.0, m.CacheHitRate)

	resp2, err := http.Get(env.ts.URL + "/api/query/history?limit=abc")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func multipartUpload(t *testing.T, files map[string]string, employeeIDs ...string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	for _, id := range employeeIDs {
		require.NoError(t, mw.WriteField("employee_id", id))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadDocuments_StatusAndEvents(t *testing.T) {
	env := newTestServer(t)

	body, contentType := multipartUpload(t, map[string]string{
		"ada_resume.txt": "Ada Lovelace. Python, mathematics and analytical engines.",
	}, "1")
	resp, err := http.Post(env.ts.URL+"/api/ingest/documents", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var up uploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	require.NotEmpty(t, up.JobID)
	assert.Equal(t, 1, up.TotalFiles)

	events, err := http.Get(env.ts.URL + "/api/ingest/status/" + up.JobID + "/events")
	require.NoError(t, err)
	defer events.Body.Close()
	assert.Equal(t, "text/event-stream", events.Header.Get("Content-Type"))

	var last domain.IngestionJob
	scanner := bufio.NewScanner(events.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &last))
		}
	}
	assert.Equal(t, domain.JobCompleted, last.Status, "stream ends after the terminal state")
	assert.Equal(t, 1, last.ProcessedFiles)

	status, err := http.Get(env.ts.URL + "/api/ingest/status/" + up.JobID)
	require.NoError(t, err)
	defer status.Body.Close()
	var job domain.IngestionJob
	require.NoError(t, json.NewDecoder(status.Body).Decode(&job))
	assert.Equal(t, domain.JobCompleted, job.Status)
	require.Len(t, job.Documents, 1)
	assert.Equal(t, "1", job.Documents[0].EmployeeID)
}

func TestUploadDocuments_Rejected(t *testing.T) {
	env := newTestServer(t)

	tests := []struct {
		name  string
		files map[string]string
		ids   []string
	}{
		{"bad extension", map[string]string{"photo.png": "not text"}, nil},
		{"employee id count mismatch", map[string]string{"a.txt": "a", "b.txt": "b"}, []string{"1", "2", "3"}},
		{"no files", map[string]string{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartUpload(t, tt.files, tt.ids...)
			resp, err := http.Post(env.ts.URL+"/api/ingest/documents", contentType, body)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestJobStatus_NotFound(t *testing.T) {
	env := newTestServer(t)

	for _, path := range []string{"/api/ingest/status/missing", "/api/ingest/status/missing/events"} {
		resp, err := http.Get(env.ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[domain.ErrorKind]int{
		domain.KindInvalidInput:     http.StatusBadRequest,
		domain.KindNotFound:         http.StatusNotFound,
		domain.KindSQLGeneration:    http.StatusUnprocessableEntity,
		domain.KindPoolExhausted:    http.StatusServiceUnavailable,
		domain.KindConnection:       http.StatusBadGateway,
		domain.KindEmbeddingService: http.StatusBadGateway,
		domain.KindExecutionTimeout: http.StatusGatewayTimeout,
		domain.KindQueryExecution:   http.StatusInternalServerError,
	}
	for kind, want := range tests {
		assert.Equal(t, want, statusFor(kind), string(kind))
	}
}

func TestWriteError_PoolExhaustedSetsRetryAfter(t *testing.T) {
	s := &Server{logger: testLogger()}
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/query", nil)

	s.writeError(w, r, domain.Errorf(domain.KindPoolExhausted, "all connections busy"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"kind":"pool_exhausted"`)
}

func TestWriteError_SQLGenerationCarriesUnmappedTerms(t *testing.T) {
	s := &Server{logger: testLogger()}
	w := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/query", nil)

	s.writeError(w, r, domain.SQLGenerationError("no column matches", "bonus"))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body errorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []string{"bonus"}, body.Error.UnmappedTerms)
}
