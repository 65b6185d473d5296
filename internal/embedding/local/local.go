// Package local provides a deterministic feature-hashing embedder for
// offline runs and tests. It needs no network and no preparation phase.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`\p{L}+|\p{N}+`)

// Embedder hashes lowercased tokens into a fixed number of buckets and
// L2-normalizes the resulting vector, so cosine similarity behaves sanely
// on the in-memory index.
type Embedder struct {
	dimension int
}

func NewEmbedder(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &Embedder{dimension: dimension}
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *Embedder) embed(text string) []float64 {
	vec := make([]float64, e.dimension)
	tokens := tokenRe.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		bucket := int(sum) % e.dimension
		if bucket < 0 {
			bucket += e.dimension
		}
		// alternate sign off one hash bit to reduce bucket collisions bias
		if sum&1 == 0 {
			vec[bucket]++
		} else {
			vec[bucket]--
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
