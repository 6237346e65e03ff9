package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

// RetryConfig configures the retry behavior for rerank API calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for rerank API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      2,
		InitialInterval: 300 * time.Millisecond,
		MaxInterval:     3 * time.Second,
	}
}

// HTTPReranker calls a Cohere/Jina compatible rerank endpoint.
type HTTPReranker struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	retry   RetryConfig
	logger  *slog.Logger
}

// HTTPRerankerOption customizes an HTTPReranker.
type HTTPRerankerOption func(*HTTPReranker)

// WithHTTPClient overrides the HTTP client (primarily for tests).
func WithHTTPClient(c *http.Client) HTTPRerankerOption {
	return func(r *HTTPReranker) { r.client = c }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(rc RetryConfig) HTTPRerankerOption {
	return func(r *HTTPReranker) { r.retry = rc }
}

// NewHTTPReranker creates a reranker client for the given endpoint.
func NewHTTPReranker(baseURL, model, apiKey string, timeout time.Duration, logger *slog.Logger, opts ...HTTPRerankerOption) *HTTPReranker {
	if logger == nil {
		logger = slog.Default()
	}
	r := &HTTPReranker{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		retry:   DefaultRetryConfig(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores candidates against query and returns their indexes ordered
// by relevance, best first.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []string) ([]int, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: candidates,
		TopN:      len(candidates),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	resp, err := r.doWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].RelevanceScore > resp.Results[j].RelevanceScore
	})

	order := make([]int, 0, len(resp.Results))
	seen := make(map[int]bool, len(resp.Results))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(candidates) || seen[res.Index] {
			continue
		}
		seen[res.Index] = true
		order = append(order, res.Index)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("rerank response contained no usable results")
	}
	return order, nil
}

func (r *HTTPReranker) doWithRetry(ctx context.Context, body []byte) (*rerankResponse, error) {
	var lastErr error
	delay := r.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		resp, err := r.doOnce(ctx, body)
		if err == nil {
			r.logger.Debug("rerank request succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err
		if !retryableError(err) {
			return nil, err
		}
		if attempt == r.retry.MaxRetries {
			break
		}

		r.logger.Debug("retrying rerank request",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, r.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("rerank after %d retries (elapsed: %v): %w",
		r.retry.MaxRetries, time.Since(start), lastErr)
}

func (r *HTTPReranker) doOnce(ctx context.Context, body []byte) (*rerankResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	httpResp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		return nil, fmt.Errorf("rerank endpoint returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out rerankResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return &out, nil
}

// retryablePatterns groups transient error substrings, matched
// case-insensitively, since the rerank endpoint exposes no typed errors.
var retryablePatterns = [][]string{
	{"rate limit", "429"},
	{"500", "502", "503", "504", "unavailable"},
	{"connection reset", "timeout", "temporary"},
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(msg, sub) {
				return true
			}
		}
	}
	return false
}
