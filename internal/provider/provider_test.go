package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhh003/limbusguide/internal/log"
)

func TestNopEmbedder(t *testing.T) {
	vec, err := (NopEmbedder{}).Embed(context.Background(), "燃烧队")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestNopRerankerIdentityOrder(t *testing.T) {
	order, err := (NopReranker{}).Rerank(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func newTestReranker(t *testing.T, url string) *HTTPReranker {
	t.Helper()
	return NewHTTPReranker(url, "rerank-v1", "test-key", 5*time.Second, log.NewNop(),
		WithRetryConfig(RetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}))
}

func TestHTTPRerankerOrdersByScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rerank-v1", req.Model)
		assert.Len(t, req.Documents, 3)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[
			{"index":0,"relevance_score":0.2},
			{"index":1,"relevance_score":0.9},
			{"index":2,"relevance_score":0.5}
		]}`))
	}))
	defer srv.Close()

	order, err := newTestReranker(t, srv.URL).Rerank(context.Background(), "燃烧队怎么配", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 0}, order)
}

func TestHTTPRerankerRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":1.0}]}`))
	}))
	defer srv.Close()

	order, err := newTestReranker(t, srv.URL).Rerank(context.Background(), "q", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, order)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPRerankerFailsFastOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestReranker(t, srv.URL).Rerank(context.Background(), "q", []string{"a"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPRerankerIgnoresInvalidIndexes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"index":5,"relevance_score":0.9},
			{"index":1,"relevance_score":0.8},
			{"index":1,"relevance_score":0.7},
			{"index":-1,"relevance_score":0.6}
		]}`))
	}))
	defer srv.Close()

	order, err := newTestReranker(t, srv.URL).Rerank(context.Background(), "q", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, order)
}

func TestHTTPRerankerEmptyCandidates(t *testing.T) {
	order, err := newTestReranker(t, "http://invalid.example").Rerank(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestRetryableError(t *testing.T) {
	assert.False(t, retryableError(nil))
	assert.False(t, retryableError(errors.New("rerank endpoint returned 400: bad request")))
	assert.True(t, retryableError(errors.New("rerank endpoint returned 503: busy")))
	assert.True(t, retryableError(errors.New("Get: connection reset by peer")))
}
