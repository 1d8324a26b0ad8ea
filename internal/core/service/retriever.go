package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

type RetrieverConfig struct {
	TopK          int
	MinSimilarity float64
	Timeout       time.Duration
}

// Retriever answers the document half of a question by nearest-neighbour
// search over ingested chunks.
type Retriever struct {
	embedder port.Embedder
	store    port.VectorStore
	cfg      RetrieverConfig
	logger   *slog.Logger
}

func NewRetriever(embedder port.Embedder, store port.VectorStore, cfg RetrieverConfig, logger *slog.Logger) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 15
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, logger: logger}
}

// Search embeds question with the ingestion model and returns up to topK
// matches at or above the similarity floor, best first. No matches is an
// empty slice, not an error. topK <= 0 uses the configured default.
func (r *Retriever) Search(ctx context.Context, question string, topK int, filters map[string]string) ([]domain.DocumentMatch, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, "search text must not be empty")
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, r.fail(ctx, "embedding question", err)
	}
	if len(vectors) != 1 {
		return nil, domain.Errorf(domain.KindEmbeddingService, "embedder returned %d vectors for 1 input", len(vectors))
	}

	hits, err := r.store.Search(ctx, vectors[0], topK, filters)
	if err != nil {
		return nil, r.fail(ctx, "searching vector store", err)
	}

	matches := make([]domain.DocumentMatch, 0, len(hits))
	for _, h := range hits {
		if h.Similarity >= r.cfg.MinSimilarity {
			matches = append(matches, h)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}

	r.logger.DebugContext(ctx, "semantic search",
		slog.String("embedding.model", r.embedder.Model()),
		slog.Int("matches", len(matches)),
		slog.Duration("duration", time.Since(start)),
	)
	return matches, nil
}

func (r *Retriever) fail(ctx context.Context, doing string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx)
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind == domain.KindEmbeddingService {
		return err
	}
	return domain.NewError(domain.KindEmbeddingService, doing+" failed: "+err.Error(), err)
}
