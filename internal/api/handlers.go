package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jhh003/limbusguide/internal/kb"
	"github.com/jhh003/limbusguide/internal/store"
)

type searchRequest struct {
	Query   string `json:"query"`
	GroupID string `json:"group_id"`
}

type searchResult struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Scope      string   `json:"scope"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
	Score      float64  `json:"score"`
	Breakdown  any      `json:"score_breakdown"`
}

type searchResponse struct {
	Query          string         `json:"query"`
	ProcessedQuery string         `json:"processed_query"`
	Tokens         []string       `json:"tokens"`
	QueryTags      []string       `json:"query_tags"`
	Mode           string         `json:"mode"`
	Degraded       bool           `json:"degraded"`
	Results        []searchResult `json:"results"`
}

// handleSearch runs the full retrieval pipeline and returns per-signal
// score breakdowns for debugging.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required", s.logger)
		return
	}

	resp, err := s.retriever.Retrieve(r.Context(), req.GroupID, req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search_failed", err.Error(), s.logger)
		return
	}

	out := searchResponse{
		Query:          resp.Query,
		ProcessedQuery: resp.ProcessedQuery,
		Tokens:         resp.Tokens,
		Mode:           string(resp.Mode),
		Degraded:       resp.Degraded,
		Results:        []searchResult{},
	}
	for _, tag := range resp.QueryTags {
		out.QueryTags = append(out.QueryTags, tag.String())
	}
	for _, res := range resp.Results {
		tags := make([]string, 0, len(res.Tags))
		for _, tag := range res.Tags {
			tags = append(tags, tag.String())
		}
		out.Results = append(out.Results, searchResult{
			ChunkID:    res.ChunkID,
			DocumentID: res.DocumentID,
			Scope:      res.Scope,
			Text:       res.Text,
			Tags:       tags,
			Score:      res.Score,
			Breakdown:  res.Breakdown,
		})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = kb.ScopeGlobal
	}
	docs := s.kb.Documents(scope)
	if docs == nil {
		docs = []kb.Document{}
	}
	writeJSON(w, http.StatusOK, docs, s.logger)
}

type uploadRequest struct {
	Scope string `json:"scope"`
	Name  string `json:"name"`
	Text  string `json:"text"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return
	}
	if req.Scope == "" {
		req.Scope = kb.ScopeGlobal
	}
	if _, ok := kb.IsGroupScope(req.Scope); !ok && req.Scope != kb.ScopeGlobal {
		writeError(w, http.StatusBadRequest, "invalid_request", "scope must be global or group:<id>", s.logger)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "name is required", s.logger)
		return
	}

	doc, chunks, err := s.kb.Ingest(r.Context(), req.Scope, req.Name, req.Text)
	if err != nil {
		if errors.Is(err, kb.ErrEmptyDocument) {
			writeError(w, http.StatusBadRequest, "invalid_request", "text is empty", s.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "ingest_failed", err.Error(), s.logger)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"document": doc,
		"chunks":   len(chunks),
	}, s.logger)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.kb.DeleteDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error(), s.logger)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "document not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}, s.logger)
}

func (s *Server) handleClearScope(w http.ResponseWriter, r *http.Request) {
	scope := r.PathValue("scope")
	if _, ok := kb.IsGroupScope(scope); !ok && scope != kb.ScopeGlobal {
		writeError(w, http.StatusBadRequest, "invalid_request", "scope must be global or group:<id>", s.logger)
		return
	}
	n, err := s.kb.ClearScope(r.Context(), scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "clear_failed", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"documents_removed": n}, s.logger)
}

type chunkView struct {
	ID         string   `json:"id"`
	DocumentID string   `json:"document_id"`
	Scope      string   `json:"scope"`
	Position   int      `json:"position"`
	Text       string   `json:"text"`
	Tags       []string `json:"tags"`
}

func (s *Server) handleListChunks(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = kb.ScopeGlobal
	}
	chunks := s.kb.Chunks(scope)
	out := make([]chunkView, 0, len(chunks))
	for _, c := range chunks {
		tags := c.TagStrings()
		if tags == nil {
			tags = []string{}
		}
		out = append(out, chunkView{
			ID:         c.ID,
			DocumentID: c.DocumentID,
			Scope:      c.Scope,
			Position:   c.Position,
			Text:       c.Text,
			Tags:       tags,
		})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.kb.Stats(r.URL.Query().Get("group")), s.logger)
}

type aliasRequest struct {
	Alias     string `json:"alias"`
	Canonical string `json:"canonical"`
	Kind      string `json:"kind"`
}

func (s *Server) handleListAliases(w http.ResponseWriter, r *http.Request) {
	aliases, err := s.kb.Aliases(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error(), s.logger)
		return
	}
	out := make([]aliasRequest, 0, len(aliases))
	for _, a := range aliases {
		out = append(out, aliasRequest{Alias: a.Alias, Canonical: a.Canonical, Kind: a.Kind})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleSetAlias(w http.ResponseWriter, r *http.Request) {
	var req aliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return
	}
	if err := s.kb.SetAlias(r.Context(), req.Alias, req.Canonical, req.Kind); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, req, s.logger)
}

func (s *Server) handleDeleteAlias(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.kb.DeleteAlias(r.Context(), r.PathValue("alias"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error(), s.logger)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "alias not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}, s.logger)
}

type statusMappingRequest struct {
	Term        string `json:"term"`
	Subcategory string `json:"subcategory"`
	Display     string `json:"display"`
}

func (s *Server) handleListStatusMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.kb.StatusMappings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error(), s.logger)
		return
	}
	out := make([]statusMappingRequest, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, statusMappingRequest{Term: m.Term, Subcategory: m.Subcategory, Display: m.Display})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleSetStatusMapping(w http.ResponseWriter, r *http.Request) {
	var req statusMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return
	}
	if err := s.kb.SetStatusMapping(r.Context(), req.Term, req.Subcategory, req.Display); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusCreated, req, s.logger)
}

func (s *Server) handleDeleteStatusMapping(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.kb.DeleteStatusMapping(r.Context(), r.PathValue("term"), r.PathValue("subcategory"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error(), s.logger)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "status mapping not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}, s.logger)
}

type templateView struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	BuiltIn bool   `json:"built_in"`
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.kb.Templates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error(), s.logger)
		return
	}
	out := make([]templateView, 0, len(templates))
	for _, t := range templates {
		out = append(out, templateView{Name: t.Name, Content: t.Content, BuiltIn: t.BuiltIn})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.kb.Template(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "template not found", s.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "get_failed", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, templateView{Name: t.Name, Content: t.Content, BuiltIn: t.BuiltIn}, s.logger)
}

type templateRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", s.logger)
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "content is required", s.logger)
		return
	}
	name := r.PathValue("name")
	if err := s.kb.SaveTemplate(r.Context(), name, req.Content); err != nil {
		writeError(w, http.StatusInternalServerError, "save_failed", err.Error(), s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": name}, s.logger)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.kb.DeleteTemplate(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, kb.ErrBuiltInTemplate) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), s.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "delete_failed", err.Error(), s.logger)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "not_found", "template not found", s.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true}, s.logger)
}
