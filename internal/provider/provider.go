// Package provider holds the external model integrations: text embedding
// and cross-encoder reranking. Both are optional; the retrieval pipeline
// degrades to lexical scoring when a provider is absent or failing.
package provider

import "context"

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker reorders candidate passages by relevance to a query. The
// returned slice holds indexes into candidates, best first. It may be
// shorter than candidates; omitted indexes keep their relative order
// after the reranked ones.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []string) ([]int, error)
}

// NopEmbedder is the embedder used when vector fusion is disabled.
// It reports no vector, never an error.
type NopEmbedder struct{}

func (NopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

// NopReranker keeps candidates in their existing order.
type NopReranker struct{}

func (NopReranker) Rerank(_ context.Context, _ string, candidates []string) ([]int, error) {
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	return order, nil
}
