package provider

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// GenkitEmbedder adapts a genkit ai.Embedder to the Embedder interface.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder wraps a genkit embedder.
func NewGenkitEmbedder(embedder ai.Embedder) *GenkitEmbedder {
	return &GenkitEmbedder{embedder: embedder}
}

// Embed generates the embedding for a single text.
func (g *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{
				Content: []*ai.Part{ai.NewTextPart(text)},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding returned")
	}
	return resp.Embeddings[0].Embedding, nil
}
