package ai

import (
	"context"
	"log"
)

// Embedder turns text into fixed-dimension vectors. Implementations
// must return one vector per input, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderOptions selects and configures an embedding backend.
type EmbedderOptions struct {
	// Provider is one of "local", "api", "fake" or "auto".
	Provider      string
	Dimension     int
	HFClient      *HFClient
	MaxEmbedChars int
}

// NewEmbedder picks an embedding backend. "auto" prefers the local
// model, then the remote API when a token is configured, then the
// deterministic fake. The choice is logged once at startup so
// operators can tell which vectors the index holds.
func NewEmbedder(opts EmbedderOptions) Embedder {
	if opts.Dimension <= 0 {
		opts.Dimension = 384
	}
	if opts.MaxEmbedChars <= 0 {
		opts.MaxEmbedChars = 5000
	}

	switch opts.Provider {
	case "local":
		log.Printf("Embeddings provider: local (dim=%d)", opts.Dimension)
		return NewLocalEmbedder(opts.Dimension)
	case "api":
		log.Printf("Embeddings provider: api")
		return NewAPIEmbedder(opts.HFClient, opts.Dimension, opts.MaxEmbedChars)
	case "fake":
		log.Printf("Embeddings provider: fake (dim=%d)", opts.Dimension)
		return NewFakeEmbedder(opts.Dimension)
	default: // auto
		if local := NewLocalEmbedder(opts.Dimension); local != nil {
			log.Printf("Embeddings provider: local (dim=%d)", opts.Dimension)
			return local
		}
		if opts.HFClient != nil && opts.HFClient.HasToken() {
			log.Printf("Embeddings provider: api")
			return NewAPIEmbedder(opts.HFClient, opts.Dimension, opts.MaxEmbedChars)
		}
		log.Printf("Embeddings provider: fake (dim=%d)", opts.Dimension)
		return NewFakeEmbedder(opts.Dimension)
	}
}

// APIEmbedder calls the remote feature-extraction endpoint. Inputs
// longer than maxChars are truncated before sending.
type APIEmbedder struct {
	client    *HFClient
	dimension int
	maxChars  int
}

func NewAPIEmbedder(client *HFClient, dimension, maxChars int) *APIEmbedder {
	return &APIEmbedder{client: client, dimension: dimension, maxChars: maxChars}
}

func (e *APIEmbedder) Name() string   { return "api" }
func (e *APIEmbedder) Dimension() int { return e.dimension }

func (e *APIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.client == nil || !e.client.HasToken() {
		return nil, &EmbeddingUnavailableError{Provider: "api", Reason: ReasonNoCredentials}
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > e.maxChars {
			t = t[:e.maxChars]
		}
		truncated[i] = t
	}

	return e.client.Embeddings(ctx, truncated)
}

// FallbackEmbedder wraps a primary backend and degrades to the
// deterministic fake when the primary reports unavailability. Both
// backends share one dimension so the index stays consistent.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder
}

func WithFallback(primary Embedder) Embedder {
	if primary == nil {
		return NewFakeEmbedder(384)
	}
	if _, ok := primary.(*FakeEmbedder); ok {
		return primary
	}
	return &FallbackEmbedder{
		primary:  primary,
		fallback: NewFakeEmbedder(primary.Dimension()),
	}
}

func (e *FallbackEmbedder) Name() string   { return e.primary.Name() }
func (e *FallbackEmbedder) Dimension() int { return e.primary.Dimension() }

func (e *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.primary.Embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	log.Printf("Embedding provider %s unavailable, using fallback: %v", e.primary.Name(), err)
	return e.fallback.Embed(ctx, texts)
}
