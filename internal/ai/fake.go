package ai

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
)

// FakeEmbedder is the terminal fallback: deterministic pseudo-random
// unit vectors seeded from the input text. The same text always maps
// to the same vector, so retrieval stays repeatable even with no
// embedding backend at all.
type FakeEmbedder struct {
	dimension int
}

func NewFakeEmbedder(dimension int) *FakeEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &FakeEmbedder{dimension: dimension}
}

func (e *FakeEmbedder) Name() string   { return "fake" }
func (e *FakeEmbedder) Dimension() int { return e.dimension }

func (e *FakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = e.embedOne(text)
	}
	return vectors, nil
}

func (e *FakeEmbedder) embedOne(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, e.dimension)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}
