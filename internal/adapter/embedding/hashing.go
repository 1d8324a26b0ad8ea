package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strconv"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// HashingEmbedder is a deterministic, offline embedder: unigrams and
// bigrams are hashed into a fixed number of signed buckets and the result
// is L2-normalised. Texts sharing words land near each other.
type HashingEmbedder struct {
	dims int
}

func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = 384
	}
	return &HashingEmbedder{dims: dims}
}

func (e *HashingEmbedder) Model() string { return "hashing-" + strconv.Itoa(e.dims) }

func (e *HashingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *HashingEmbedder) vector(text string) []float32 {
	v := make([]float64, e.dims)
	toks := domain.Tokens(text)
	for i, tok := range toks {
		e.add(v, tok, 1)
		if i > 0 {
			e.add(v, toks[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func (e *HashingEmbedder) add(v []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
