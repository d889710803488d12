package providers

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/mcbridge/mcbridge/internal/config"
)

func init() {
	RegisterEmbedding("null", func(cfg config.EmbeddingConfig) (EmbeddingProvider, error) {
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 384
		}
		return &nullEmbedding{dims: dims}, nil
	})
}

// nullEmbedding produces deterministic pseudo-vectors from a hash of the
// text. Equal texts embed equally, which is enough for tests and for
// running without an embedding backend.
type nullEmbedding struct {
	dims int
}

func (n *nullEmbedding) Name() string    { return "null" }
func (n *nullEmbedding) Dimensions() int { return n.dims }

func (n *nullEmbedding) Embed(_ context.Context, text string) (Embedding, error) {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, n.dims)
	var norm float64
	for i := range vec {
		// xorshift64 over the seed gives a stable stream per text.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2001)-1000) / 1000
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return Embedding{Vector: vec, Model: "null", Dimensions: n.dims}, nil
}

func (n *nullEmbedding) EmbedBatch(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	for i, t := range texts {
		emb, err := n.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

func (n *nullEmbedding) HealthCheck(context.Context) HealthStatus { return Healthy }
