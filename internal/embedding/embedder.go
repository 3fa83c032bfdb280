package embedding

import (
	"fmt"
	"math"

	"finrag/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
type Embedder = domain.Embedder

// CheckBatch verifies that a provider answered with one non-empty vector per
// input and that all vectors share a dimension.
func CheckBatch(provider string, texts []string, vectors [][]float32) error {
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: %s returned %d vectors for %d texts", domain.ErrEmbedding, provider, len(vectors), len(texts))
	}
	dim := -1
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: %s returned an empty vector at %d", domain.ErrEmbedding, provider, i)
		}
		if dim >= 0 && len(v) != dim {
			return fmt.Errorf("%w: %s returned mixed dimensions %d and %d", domain.ErrEmbedding, provider, dim, len(v))
		}
		dim = len(v)
	}
	return nil
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
