package port

import (
	"context"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// Embedder turns text into vectors. Ingestion and search must use the same
// model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// ChunkRecord is one embedded chunk ready for storage.
type ChunkRecord struct {
	ID      string
	Vector  []float32
	Content string
	Source  domain.SourceMetadata
}

// VectorStore is the nearest-neighbour capability over stored chunks.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []ChunkRecord) error
	// Search returns up to topK chunks ranked by cosine similarity. filter
	// restricts results to chunks whose metadata fields equal the values.
	Search(ctx context.Context, vector []float32, topK int, filter map[string]string) ([]domain.DocumentMatch, error)
}

// TextExtractor pulls plain text out of an uploaded file.
type TextExtractor interface {
	// Extract returns the text and the normalized file type (pdf, docx, txt, csv).
	Extract(ctx context.Context, filename string, data []byte) (text, fileType string, err error)
}

// JobStore persists ingestion job state.
type JobStore interface {
	Save(ctx context.Context, job *domain.IngestionJob) error
	// Get returns domain.ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.IngestionJob, error)
}
