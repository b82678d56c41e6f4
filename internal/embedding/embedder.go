// Package embedding holds helpers shared by embedder implementations.
// The Embedder contract itself is domain.Embedder.
package embedding

import (
	"math"

	"agentiq/internal/domain"
)

// Embedder is re-exported for callers that only deal with embeddings.
type Embedder = domain.Embedder

// L2Normalize scales v to unit length in place. Zero vectors are left as is.
func L2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}
