package context

import (
	stdctx "context"
	"hash/fnv"
	"math"
	"strings"
)

// HashEmbedder is the offline default Embedder: a deterministic
// bag-of-words hashing scheme, the same "skip a real embedding model,
// score cheaply from term statistics" tradeoff the teacher's learning
// store documents ("Chose TF-IDF over embeddings") for its own
// similarity search. It exists so the indexer has a working Embedder
// with no external service configured; an operator wires a real
// embedding provider by implementing Embedder and passing it to
// NewIndexer instead.
type HashEmbedder struct {
	Dims int
}

// NewHashEmbedder returns a HashEmbedder producing vectors of dims
// dimensions, defaulting to 256 when dims <= 0.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dims: dims}
}

const hashEmbedderModel = "hash-bow-v1"

// Embed hashes each whitespace-delimited token into a bucket and
// accumulates a term-frequency vector, then L2-normalizes it so cosine
// similarity behaves sensibly downstream.
func (h *HashEmbedder) Embed(_ stdctx.Context, content string) ([]float32, string, int, error) {
	vec := make([]float32, h.Dims)
	for _, tok := range strings.Fields(content) {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(tok))
		bucket := int(hasher.Sum32()) % h.Dims
		if bucket < 0 {
			bucket += h.Dims
		}
		vec[bucket]++
	}

	var sumSquares float32
	for _, v := range vec {
		sumSquares += v * v
	}
	if sumSquares > 0 {
		norm := float32(math.Sqrt(float64(sumSquares)))
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec, hashEmbedderModel, h.Dims, nil
}
