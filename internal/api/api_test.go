package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/kb"
	"github.com/jhh003/limbusguide/internal/log"
	"github.com/jhh003/limbusguide/internal/provider"
	"github.com/jhh003/limbusguide/internal/retriever"
	"github.com/jhh003/limbusguide/internal/store"
)

const testToken = "test-token"

func newTestServer(t *testing.T, serverCfg config.Server) *Server {
	t.Helper()
	cfg := config.Retrieval{
		TopK:               6,
		ChunkSize:          800,
		Overlap:            120,
		GroupBoost:         1.2,
		TagBoost:           1.5,
		EmbedWeight:        2.0,
		BM25K1:             1.5,
		BM25B:              0.75,
		RerankWindowFactor: 3,
		ImportTimeout:      time.Minute,
	}

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	manager, err := kb.New(st, provider.NopEmbedder{}, cfg, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.Load(context.Background()))

	r := retriever.New(manager, provider.NopEmbedder{}, provider.NopReranker{}, cfg, log.NewNop())

	srv, err := NewServer(manager, r, serverCfg, log.NewNop())
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthNeedsNoToken(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	rec := doRequest(t, srv.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRejectsMissingOrWrongToken(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodGet, "/api/stats", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/stats", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/stats", testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenGeneratedWhenUnset(t *testing.T) {
	srv := newTestServer(t, config.Server{})
	assert.Len(t, srv.Token(), 48)
}

func TestDocumentLifecycle(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/documents", testToken, map[string]string{
		"scope": "global",
		"name":  "烧队攻略",
		"text":  "燃烧队的核心是持续叠加燃烧层数",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Document kb.Document `json:"document"`
		Chunks   int         `json:"chunks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, 1, created.Chunks)

	rec = doRequest(t, h, http.MethodGet, "/api/documents?scope=global", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var docs []kb.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "烧队攻略", docs[0].Name)

	rec = doRequest(t, h, http.MethodGet, "/api/chunks?scope=global", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var chunks []chunkView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chunks))
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Tags, "status:burn")

	rec = doRequest(t, h, http.MethodDelete, "/api/documents/"+created.Document.ID, testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/documents/"+created.Document.ID, testToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadValidation(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/documents", testToken, map[string]string{
		"scope": "nonsense",
		"name":  "x",
		"text":  "y",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/documents", testToken, map[string]string{
		"scope": "global",
		"name":  "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchDebugBreakdown(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/documents", testToken, map[string]string{
		"scope": "global",
		"name":  "烧队攻略",
		"text":  "燃烧队配队的核心思路",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodPost, "/api/search", testToken, map[string]string{
		"query": "燃烧队配队",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "燃烧队配队", resp.Query)
	assert.NotEmpty(t, resp.Tokens)
	assert.Contains(t, resp.QueryTags, "status:burn")
	require.Len(t, resp.Results, 1)
	assert.Greater(t, resp.Results[0].Score, 0.0)
	assert.NotNil(t, resp.Results[0].Breakdown)
}

func TestSearchRequiresQuery(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	rec := doRequest(t, srv.Handler(), http.MethodPost, "/api/search", testToken, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClearScope(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/documents", testToken, map[string]string{
		"scope": "group:42",
		"name":  "群文档",
		"text":  "群内攻略内容",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/scopes/group:42", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"documents_removed":1}`, rec.Body.String())

	rec = doRequest(t, h, http.MethodDelete, "/api/scopes/whatever", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAliasEndpoints(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/aliases", testToken, map[string]string{
		"alias": "md", "canonical": "镜牢", "kind": "mode",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/aliases", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var aliases []aliasRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &aliases))
	require.Len(t, aliases, 1)
	assert.Equal(t, "镜牢", aliases[0].Canonical)

	rec = doRequest(t, h, http.MethodDelete, "/api/aliases/md", testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/aliases/md", testToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusMappingEndpoints(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	rec := doRequest(t, h, http.MethodPost, "/api/status-mappings", testToken, map[string]string{
		"term": "灼烧", "subcategory": "burn", "display": "燃烧",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/status-mappings", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mappings []statusMappingRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mappings))
	require.Len(t, mappings, 1)

	rec = doRequest(t, h, http.MethodDelete, "/api/status-mappings/灼烧/burn", testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTemplateEndpoints(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken})
	h := srv.Handler()

	// Built-in content is served without seeding.
	rec := doRequest(t, h, http.MethodGet, "/api/templates/document", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tpl templateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tpl))
	assert.True(t, tpl.BuiltIn)

	rec = doRequest(t, h, http.MethodPut, "/api/templates/custom", testToken, map[string]string{"content": "自定义"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/templates", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var all []templateView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 1)

	rec = doRequest(t, h, http.MethodDelete, "/api/templates/document", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, http.MethodDelete, "/api/templates/custom", testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/templates/missing", testToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, config.Server{Token: testToken, RateLimit: 1, Burst: 1})
	h := srv.Handler()

	first := doRequest(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, first.Code)

	var limited bool
	for i := range 5 {
		rec := doRequest(t, h, http.MethodGet, fmt.Sprintf("/health?i=%d", i), "", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			break
		}
	}
	assert.True(t, limited, "expected a 429 after the burst was spent")
}
