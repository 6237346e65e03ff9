// Package retriever runs the query pipeline: alias normalization,
// tokenization, lexical scoring with tag and scope boosts, optional
// embedding fusion, and optional cross-encoder reranking.
package retriever

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/prompt"
	"github.com/jhh003/limbusguide/internal/provider"
	"github.com/jhh003/limbusguide/internal/tagger"
)

// Candidate is one chunk eligible for ranking. BM25 is the lexical score
// against the current query; zero means no term overlap, which still
// leaves the chunk rankable through its tags.
type Candidate struct {
	ChunkID    string
	DocumentID string
	Scope      string
	Group      bool
	Text       string
	Tags       []tagger.Tag
	Embedding  []float32
	BM25       float64
}

// Store supplies candidates and dictionaries for a query. Implemented by
// the knowledge base manager.
type Store interface {
	// Tagger returns the current tagging dictionary snapshot.
	Tagger() *tagger.Tagger

	// Candidates returns every chunk visible to groupID (global scope
	// plus the group's own scope) with BM25 scores for queryTokens.
	Candidates(groupID string, queryTokens []string) []Candidate

	// DefaultMode returns the group's configured answer mode.
	DefaultMode(groupID string) prompt.Mode
}

// Breakdown records each scoring signal for one result.
type Breakdown struct {
	BM25         float64  `json:"bm25"`
	TagBoost     float64  `json:"tag_boost"`
	GroupBoost   float64  `json:"group_boost"`
	EmbedScore   float64  `json:"embed_score"`
	MatchingTags []string `json:"matching_tags"`
}

// Result is one ranked chunk.
type Result struct {
	Candidate
	Score     float64
	Breakdown Breakdown
}

// Response is the full outcome of one retrieval.
type Response struct {
	Query          string
	ProcessedQuery string
	Tokens         []string
	QueryTags      []tagger.Tag
	Mode           prompt.Mode
	Results        []Result

	// Degraded is set when an optional provider (embedder or reranker)
	// failed and the pipeline fell back to lexical-only behavior.
	Degraded bool
}

// Retriever executes queries against a Store.
type Retriever struct {
	store    Store
	embedder provider.Embedder
	reranker provider.Reranker
	cfg      config.Retrieval
	logger   *slog.Logger
}

// New builds a Retriever. Pass provider.NopEmbedder / provider.NopReranker
// to disable the corresponding stage.
func New(store Store, embedder provider.Embedder, reranker provider.Reranker, cfg config.Retrieval, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		reranker: reranker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve ranks the chunks visible to groupID against query and returns
// the top results with per-signal score breakdowns.
func (r *Retriever) Retrieve(ctx context.Context, groupID, query string) (*Response, error) {
	tg := r.store.Tagger()

	processed := tg.ApplyAliases(query)
	tokens := tg.ExpandTokens(tg.Tokenize(processed))
	queryTags := tg.Tags(processed)

	resp := &Response{
		Query:          query,
		ProcessedQuery: processed,
		Tokens:         tokens,
		QueryTags:      queryTags,
		Mode:           prompt.DetectModeWith(query, r.cfg.DetailTriggers, r.store.DefaultMode(groupID)),
	}
	if len(tokens) == 0 {
		return resp, nil
	}

	candidates := r.store.Candidates(groupID, tokens)
	if len(candidates) == 0 {
		return resp, nil
	}

	queryVec := r.embedQuery(ctx, processed, resp)

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		matching := sharedTags(queryTags, c.Tags)
		breakdown := Breakdown{
			BM25:         c.BM25,
			MatchingTags: matching,
		}
		breakdown.TagBoost = float64(len(matching)) * r.cfg.TagBoost

		score := c.BM25 + breakdown.TagBoost

		if c.Group {
			breakdown.GroupBoost = score*r.cfg.GroupBoost - score
			score *= r.cfg.GroupBoost
		}

		if len(queryVec) > 0 && len(c.Embedding) > 0 {
			breakdown.EmbedScore = r.cfg.EmbedWeight * cosine(queryVec, c.Embedding)
			score += breakdown.EmbedScore
		}

		if score <= 0 {
			continue
		}
		results = append(results, Result{Candidate: c, Score: score, Breakdown: breakdown})
	}

	sortResults(results)

	window := r.cfg.RerankWindow(r.cfg.TopK)
	if len(results) > window {
		results = results[:window]
	}

	results = r.rerank(ctx, processed, results, resp)

	if len(results) > r.cfg.TopK {
		results = results[:r.cfg.TopK]
	}
	resp.Results = results
	return resp, nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string, resp *Response) []float32 {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		r.logger.Warn("query embedding failed, continuing without vector fusion", "error", err)
		resp.Degraded = true
		return nil
	}
	return vec
}

// rerank reorders the window through the configured reranker. On failure
// the pre-rerank order is kept and the response is marked degraded.
func (r *Retriever) rerank(ctx context.Context, query string, results []Result, resp *Response) []Result {
	if len(results) < 2 {
		return results
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}

	order, err := r.reranker.Rerank(ctx, query, texts)
	if err != nil {
		r.logger.Warn("rerank failed, keeping lexical order", "error", err)
		resp.Degraded = true
		return results
	}

	reordered := make([]Result, 0, len(results))
	used := make([]bool, len(results))
	for _, idx := range order {
		if idx < 0 || idx >= len(results) || used[idx] {
			continue
		}
		used[idx] = true
		reordered = append(reordered, results[idx])
	}
	for i, res := range results {
		if !used[i] {
			reordered = append(reordered, res)
		}
	}
	return reordered
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
}

func sharedTags(queryTags, chunkTags []tagger.Tag) []string {
	if len(queryTags) == 0 || len(chunkTags) == 0 {
		return nil
	}
	set := make(map[tagger.Tag]bool, len(chunkTags))
	for _, t := range chunkTags {
		set[t] = true
	}
	var out []string
	for _, t := range queryTags {
		if set[t] {
			out = append(out, t.String())
		}
	}
	sort.Strings(out)
	return out
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := range n {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
