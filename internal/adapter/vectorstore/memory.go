// Package vectorstore holds embedded document chunks for nearest-neighbour
// search.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// Memory is a brute-force cosine store living in process memory.
type Memory struct {
	mu     sync.RWMutex
	chunks map[string]port.ChunkRecord
	order  []string
}

func NewMemory() *Memory {
	return &Memory{chunks: make(map[string]port.ChunkRecord)}
}

func (m *Memory) Upsert(_ context.Context, chunks []port.ChunkRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk without id")
		}
		if _, exists := m.chunks[c.ID]; !exists {
			m.order = append(m.order, c.ID)
		}
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		c.Vector = vec
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]domain.DocumentMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.DocumentMatch, 0)
	for i, id := range m.order {
		if i%256 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c := m.chunks[id]
		if !matchesFilter(c.Source, filter) || len(c.Vector) != len(vector) {
			continue
		}
		matches = append(matches, domain.DocumentMatch{
			ChunkID:    c.ID,
			Similarity: cosine(vector, c.Vector),
			Content:    c.Content,
			Source:     c.Source,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Len reports the number of stored chunks.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks)
}

func matchesFilter(src domain.SourceMetadata, filter map[string]string) bool {
	for k, want := range filter {
		if metadataValue(src, k) != want {
			return false
		}
	}
	return true
}

func metadataValue(src domain.SourceMetadata, key string) string {
	switch key {
	case "document_id":
		return src.DocumentID
	case "filename":
		return src.Filename
	case "file_type":
		return src.FileType
	case "chunk_index":
		return strconv.Itoa(src.ChunkIndex)
	case "employee_id":
		return src.EmployeeID
	}
	return ""
}

// cosine returns the cosine similarity of a and b clamped to [0, 1].
func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	s := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, s))
}
