package retrieval

import (
	"context"
	"fmt"
)

// EmbeddingEngine is the interface for embedding generation backends.
type EmbeddingEngine interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// Embedder wraps an EmbeddingEngine with a fixed model name.
type Embedder struct {
	engine EmbeddingEngine
	model  string
}

// NewEmbedder creates an Embedder using the given engine and model name.
func NewEmbedder(e EmbeddingEngine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vec, nil
}
