package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

const (
	defaultTenant   = "default_tenant"
	defaultDatabase = "default_database"
)

// Chroma talks to a Chroma server over its v2 REST API. The collection is
// created on first use with the cosine distance space.
type Chroma struct {
	baseURL    string
	collection string
	client     *http.Client

	mu           sync.Mutex
	collectionID string
}

func NewChroma(baseURL, collection string) *Chroma {
	return &Chroma{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type chromaCollection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type chromaUpsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Documents  []string         `json:"documents"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type chromaQueryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include"`
}

type chromaQueryResult struct {
	IDs       [][]string         `json:"ids"`
	Documents [][]*string        `json:"documents"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Distances [][]float64        `json:"distances"`
}

func (c *Chroma) collectionsURL() string {
	return fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s/collections", c.baseURL, defaultTenant, defaultDatabase)
}

// ensureCollection returns the collection id, creating it when missing.
func (c *Chroma) ensureCollection(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.collectionID != "" {
		return c.collectionID, nil
	}

	var col chromaCollection
	err := c.post(ctx, c.collectionsURL(), map[string]any{
		"name":          c.collection,
		"metadata":      map[string]any{"hnsw:space": "cosine"},
		"get_or_create": true,
	}, &col)
	if err != nil {
		return "", fmt.Errorf("creating chroma collection %q: %w", c.collection, err)
	}
	if col.ID == "" {
		return "", fmt.Errorf("chroma returned no id for collection %q", c.collection)
	}
	c.collectionID = col.ID
	return col.ID, nil
}

func (c *Chroma) Upsert(ctx context.Context, chunks []port.ChunkRecord) error {
	if len(chunks) == 0 {
		return nil
	}
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return err
	}

	req := chromaUpsertRequest{
		IDs:        make([]string, len(chunks)),
		Embeddings: make([][]float32, len(chunks)),
		Documents:  make([]string, len(chunks)),
		Metadatas:  make([]map[string]any, len(chunks)),
	}
	for i, ch := range chunks {
		req.IDs[i] = ch.ID
		req.Embeddings[i] = ch.Vector
		req.Documents[i] = ch.Content
		req.Metadatas[i] = toMetadata(ch.Source)
	}
	if err := c.post(ctx, c.collectionsURL()+"/"+url.PathEscape(id)+"/upsert", req, nil); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(chunks), err)
	}
	return nil
}

func (c *Chroma) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]domain.DocumentMatch, error) {
	id, err := c.ensureCollection(ctx)
	if err != nil {
		return nil, err
	}

	req := chromaQueryRequest{
		QueryEmbeddings: [][]float32{vector},
		NResults:        topK,
		Where:           toWhere(filter),
		Include:         []string{"documents", "metadatas", "distances"},
	}
	var res chromaQueryResult
	if err := c.post(ctx, c.collectionsURL()+"/"+url.PathEscape(id)+"/query", req, &res); err != nil {
		return nil, fmt.Errorf("querying chroma: %w", err)
	}

	matches := make([]domain.DocumentMatch, 0)
	if len(res.IDs) == 0 {
		return matches, nil
	}
	for i, chunkID := range res.IDs[0] {
		m := domain.DocumentMatch{ChunkID: chunkID}
		if len(res.Distances) > 0 && i < len(res.Distances[0]) {
			m.Similarity = max(0, 1-res.Distances[0][i])
		}
		if len(res.Documents) > 0 && i < len(res.Documents[0]) && res.Documents[0][i] != nil {
			m.Content = *res.Documents[0][i]
		}
		if len(res.Metadatas) > 0 && i < len(res.Metadatas[0]) {
			m.Source = fromMetadata(res.Metadatas[0][i])
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (c *Chroma) post(ctx context.Context, endpoint string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chroma returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func toMetadata(src domain.SourceMetadata) map[string]any {
	md := map[string]any{
		"document_id": src.DocumentID,
		"filename":    src.Filename,
		"file_type":   src.FileType,
		"chunk_index": src.ChunkIndex,
	}
	// Chroma rejects null metadata values.
	if src.EmployeeID != "" {
		md["employee_id"] = src.EmployeeID
	}
	return md
}

func fromMetadata(md map[string]any) domain.SourceMetadata {
	str := func(k string) string {
		s, _ := md[k].(string)
		return s
	}
	src := domain.SourceMetadata{
		DocumentID: str("document_id"),
		Filename:   str("filename"),
		FileType:   str("file_type"),
		EmployeeID: str("employee_id"),
	}
	switch v := md["chunk_index"].(type) {
	case float64:
		src.ChunkIndex = int(v)
	case string:
		src.ChunkIndex, _ = strconv.Atoi(v)
	}
	return src
}

// toWhere turns field equality filters into a Chroma where clause. More
// than one field needs an explicit $and.
func toWhere(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	clauses := make([]map[string]any, 0, len(filter))
	for _, k := range slices.Sorted(maps.Keys(filter)) {
		var val any = filter[k]
		if k == "chunk_index" {
			if n, err := strconv.Atoi(filter[k]); err == nil {
				val = n
			}
		}
		clauses = append(clauses, map[string]any{k: val})
	}
	if len(clauses) == 1 {
		return clauses[0]
	}
	return map[string]any{"$and": clauses}
}
