package embedding_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/hrquery/internal/adapter/embedding"
	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

func TestHTTPEmbedder_BatchesAndOrders(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mini", req.Model)
		assert.LessOrEqual(t, len(req.Input), 2)

		// Reply out of order; the client must restore input order.
		type item struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		}
		data := make([]item, len(req.Input))
		for i, in := range req.Input {
			data[len(req.Input)-1-i] = item{Index: i, Embedding: []float32{float32(len(in))}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	defer srv.Close()

	e := embedding.NewHTTPEmbedder(srv.URL, "mini", embedding.WithAPIKey("sk-test"), embedding.WithBatchSize(2))
	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	assert.Equal(t, [][]float32{{1}, {2}, {3}}, vecs)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "mini", e.Model())
}

func TestHTTPEmbedder_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := embedding.NewHTTPEmbedder(srv.URL+"/v1/embeddings", "mini").Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := embedding.NewHTTPEmbedder(srv.URL, "mini").Embed(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func TestHTTPEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := embedding.NewHTTPEmbedder(url, "mini").Embed(context.Background(), []string{"hello"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingService)
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashingEmbedder(t *testing.T) {
	e := embedding.NewHashingEmbedder(256)
	vecs, err := e.Embed(context.Background(), []string{
		"Senior Python developer with Django experience",
		"python developer, Django and Flask",
		"Quarterly revenue report for the finance team",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
	assert.Len(t, vecs[3], 256)
	assert.Equal(t, "hashing-256", e.Model())

	again, err := e.Embed(context.Background(), []string{"Senior Python developer with Django experience"})
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again[0])
}
