package httpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		out = append(out, line)
	}
	return out
}

func TestRequestLogger_LogsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	s := &Server{logger: slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(s.requestLogger)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Route("/api", func(api chi.Router) {
		api.Route("/schema", func(sc chi.Router) {
			sc.Get("/tables/{table}", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
		})
		api.Post("/query/", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) })
	})

	for _, target := range []string{"/api/schema/tables/employees", "/api/schema/tables/payroll"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/query/", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	lines := logLines(t, &buf)
	require.Len(t, lines, 5)

	for _, l := range lines[:2] {
		assert.Equal(t, "/api/schema/tables/{table}", l["http.route"])
		assert.Equal(t, "INFO", l["level"])
		assert.Equal(t, float64(http.StatusOK), l["http.status_code"])
		assert.Equal(t, float64(2), l["http.response_size"])
		assert.NotEmpty(t, l["request_id"])
		assert.NotContains(t, l, "path")
	}
	assert.NotEqual(t, lines[0]["request_id"], lines[1]["request_id"])

	assert.Equal(t, "/api/query", lines[2]["http.route"])
	assert.Equal(t, "WARN", lines[2]["level"])
	assert.Equal(t, "POST", lines[2]["http.method"])

	assert.Equal(t, "DEBUG", lines[3]["level"])
	assert.Equal(t, "unmatched", lines[4]["http.route"])
	assert.Equal(t, float64(http.StatusNotFound), lines[4]["http.status_code"])
}
