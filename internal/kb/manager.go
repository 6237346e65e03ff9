// Package kb is the knowledge base manager: it owns the persistent store,
// the per-scope inverted indexes, the tagging dictionaries, and group
// import sessions. It is the retrieval pipeline's candidate source.
package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhh003/limbusguide/internal/chunker"
	"github.com/jhh003/limbusguide/internal/config"
	"github.com/jhh003/limbusguide/internal/index"
	"github.com/jhh003/limbusguide/internal/prompt"
	"github.com/jhh003/limbusguide/internal/provider"
	"github.com/jhh003/limbusguide/internal/retriever"
	"github.com/jhh003/limbusguide/internal/store"
	"github.com/jhh003/limbusguide/internal/tagger"
)

var (
	// ErrEmptyDocument indicates an ingest with no usable text.
	ErrEmptyDocument = errors.New("kb: document text is empty")

	// ErrInvalidMode indicates an unknown answer mode name.
	ErrInvalidMode = errors.New("kb: invalid answer mode")

	// ErrBuiltInTemplate indicates an attempt to delete a seeded template.
	ErrBuiltInTemplate = errors.New("kb: built-in templates cannot be deleted")
)

// scopeState holds one scope's in-memory index. Its mutex serializes all
// access to the index and chunk maps; BM25 scoring runs under RLock.
type scopeState struct {
	mu     sync.RWMutex
	index  *index.Index
	chunks map[string]*Chunk
	docs   map[string]Document
}

// Manager coordinates the store, indexes, dictionaries, and sessions.
// Safe for concurrent use.
type Manager struct {
	store    *store.Store
	embedder provider.Embedder
	cfg      config.Retrieval
	logger   *slog.Logger

	// dictMu guards the tagger/chunker pair, which are rebuilt together
	// whenever the alias dictionary or status mappings change.
	dictMu sync.RWMutex
	tg     *tagger.Tagger
	ck     *chunker.Chunker

	scopesMu sync.RWMutex
	scopes   map[string]*scopeState

	// opsMu guards ops. Each scope's op mutex serializes whole
	// ingest/delete/clear operations, covering the store write and the
	// in-memory update as one unit; scopeState.mu only guards the index.
	opsMu sync.Mutex
	ops   map[string]*sync.Mutex

	settingsMu sync.RWMutex
	settings   map[string]store.GroupSettingsRecord

	sessionsMu sync.Mutex
	sessions   map[string]*importSession
}

// New builds a Manager over an opened store. Call Load before serving
// queries to rebuild in-memory state from the store.
func New(st *store.Store, embedder provider.Embedder, cfg config.Retrieval, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if embedder == nil {
		embedder = provider.NopEmbedder{}
	}

	m := &Manager{
		store:    st,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger,
		scopes:   make(map[string]*scopeState),
		ops:      make(map[string]*sync.Mutex),
		settings: make(map[string]store.GroupSettingsRecord),
		sessions: make(map[string]*importSession),
	}
	if err := m.rebuildDictionaries(nil, nil); err != nil {
		return nil, err
	}
	return m, nil
}

// Load rebuilds dictionaries, group settings, and every scope index from
// the store.
func (m *Manager) Load(ctx context.Context) error {
	aliases, err := m.store.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("load aliases: %w", err)
	}
	mappings, err := m.store.ListStatusMappings(ctx)
	if err != nil {
		return fmt.Errorf("load status mappings: %w", err)
	}
	if err := m.rebuildDictionaries(aliases, mappings); err != nil {
		return err
	}

	settings, err := m.store.ListGroupSettings(ctx)
	if err != nil {
		return fmt.Errorf("load group settings: %w", err)
	}
	m.settingsMu.Lock()
	m.settings = make(map[string]store.GroupSettingsRecord, len(settings))
	for _, g := range settings {
		m.settings[g.GroupID] = g
	}
	m.settingsMu.Unlock()

	docs, err := m.store.ListAllDocuments(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	chunks, err := m.store.ListAllChunks(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}

	tg := m.Tagger()
	scopes := make(map[string]*scopeState)
	state := func(scope string) *scopeState {
		s, ok := scopes[scope]
		if !ok {
			s = m.newScopeState()
			scopes[scope] = s
		}
		return s
	}

	for _, d := range docs {
		state(d.Scope).docs[d.ID] = Document{
			ID:        d.ID,
			Scope:     d.Scope,
			GroupID:   d.GroupID,
			Name:      d.Name,
			Chars:     d.RawTextLen,
			CreatedAt: d.CreatedAt,
		}
	}
	for _, rec := range chunks {
		s := state(rec.Scope)
		c := &Chunk{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Scope:      rec.Scope,
			GroupID:    rec.GroupID,
			Position:   rec.Position,
			Text:       rec.Content,
			Embedding:  rec.Embedding,
		}
		for _, raw := range rec.Tags {
			if tag, ok := tagger.ParseTag(raw); ok {
				c.Tags = append(c.Tags, tag)
			}
		}
		s.chunks[c.ID] = c
		s.index.Add(c.ID, c.DocumentID, tg.Tokenize(c.Text))
		if d, ok := s.docs[c.DocumentID]; ok {
			d.Chunks++
			s.docs[c.DocumentID] = d
		}
	}

	m.scopesMu.Lock()
	m.scopes = scopes
	m.scopesMu.Unlock()

	m.logger.Info("knowledge base loaded",
		"documents", len(docs),
		"chunks", len(chunks),
		"scopes", len(scopes),
		"aliases", len(aliases),
	)
	return nil
}

func (m *Manager) newScopeState() *scopeState {
	return &scopeState{
		index:  index.New(index.Params{K1: m.cfg.BM25K1, B: m.cfg.BM25B}),
		chunks: make(map[string]*Chunk),
		docs:   make(map[string]Document),
	}
}

func (m *Manager) scope(name string, create bool) *scopeState {
	m.scopesMu.RLock()
	s := m.scopes[name]
	m.scopesMu.RUnlock()
	if s != nil || !create {
		return s
	}

	m.scopesMu.Lock()
	defer m.scopesMu.Unlock()
	if s = m.scopes[name]; s == nil {
		s = m.newScopeState()
		m.scopes[name] = s
	}
	return s
}

// scopeOp returns the mutex serializing mutating operations against one
// scope. Op mutexes are never removed; the map stays small (one entry per
// scope ever touched).
func (m *Manager) scopeOp(scope string) *sync.Mutex {
	m.opsMu.Lock()
	defer m.opsMu.Unlock()
	mu, ok := m.ops[scope]
	if !ok {
		mu = &sync.Mutex{}
		m.ops[scope] = mu
	}
	return mu
}

// Tagger returns the current tagging dictionary snapshot.
func (m *Manager) Tagger() *tagger.Tagger {
	m.dictMu.RLock()
	defer m.dictMu.RUnlock()
	return m.tg
}

func (m *Manager) splitter() (*tagger.Tagger, *chunker.Chunker) {
	m.dictMu.RLock()
	defer m.dictMu.RUnlock()
	return m.tg, m.ck
}

func (m *Manager) rebuildDictionaries(aliases []store.AliasRecord, mappings []store.StatusMappingRecord) error {
	aliasMap := make(map[string]string, len(aliases))
	for _, a := range aliases {
		aliasMap[a.Alias] = a.Canonical
	}
	statusMappings := make([]tagger.StatusMapping, 0, len(mappings))
	for _, sm := range mappings {
		statusMappings = append(statusMappings, tagger.StatusMapping{
			Term:        sm.Term,
			Subcategory: sm.Subcategory,
			Display:     sm.Display,
		})
	}

	tg := tagger.New(aliasMap, statusMappings)
	ck, err := chunker.New(chunker.Params{ChunkSize: m.cfg.ChunkSize, Overlap: m.cfg.Overlap}, tg)
	if err != nil {
		return err
	}

	m.dictMu.Lock()
	m.tg = tg
	m.ck = ck
	m.dictMu.Unlock()
	return nil
}

func (m *Manager) reloadDictionaries(ctx context.Context) error {
	aliases, err := m.store.ListAliases(ctx)
	if err != nil {
		return fmt.Errorf("reload aliases: %w", err)
	}
	mappings, err := m.store.ListStatusMappings(ctx)
	if err != nil {
		return fmt.Errorf("reload status mappings: %w", err)
	}
	return m.rebuildDictionaries(aliases, mappings)
}

// Ingest chunks, tags, embeds, persists, and indexes one document.
// Embedding failures degrade to lexical-only chunks rather than failing
// the ingest.
func (m *Manager) Ingest(ctx context.Context, scope, name, text string) (Document, []Chunk, error) {
	if text == "" {
		return Document{}, nil, ErrEmptyDocument
	}
	groupID, _ := IsGroupScope(scope)

	tg, ck := m.splitter()
	fragments := ck.Split(text)
	if len(fragments) == 0 {
		return Document{}, nil, ErrEmptyDocument
	}

	docID := uuid.New().String()
	now := time.Now().UTC()
	doc := Document{
		ID:        docID,
		Scope:     scope,
		GroupID:   groupID,
		Name:      name,
		Chars:     len([]rune(text)),
		Chunks:    len(fragments),
		CreatedAt: now,
	}

	chunks := make([]Chunk, len(fragments))
	records := make([]store.ChunkRecord, len(fragments))
	for i, f := range fragments {
		c := Chunk{
			ID:         docID + ":" + strconv.Itoa(f.Position),
			DocumentID: docID,
			Scope:      scope,
			GroupID:    groupID,
			Position:   f.Position,
			Text:       f.Text,
			Tags:       f.Tags,
		}

		vec, err := m.embedder.Embed(ctx, f.Text)
		if err != nil {
			m.logger.Warn("chunk embedding failed, chunk stays lexical-only",
				"chunk", c.ID, "error", err)
		} else {
			c.Embedding = vec
		}

		chunks[i] = c
		records[i] = store.ChunkRecord{
			ID:         c.ID,
			DocumentID: docID,
			Scope:      scope,
			GroupID:    groupID,
			Position:   c.Position,
			Content:    c.Text,
			Tags:       c.TagStrings(),
			Embedding:  c.Embedding,
			CreatedAt:  now,
		}
	}

	// The op mutex keeps the store write and the index update atomic with
	// respect to concurrent clear/delete on the same scope. Embedding
	// already happened above, outside any lock.
	op := m.scopeOp(scope)
	op.Lock()
	defer op.Unlock()

	err := m.store.SaveDocument(ctx, store.DocumentRecord{
		ID:         docID,
		Scope:      scope,
		GroupID:    groupID,
		Name:       name,
		RawText:    text,
		RawTextLen: doc.Chars,
		CreatedAt:  now,
	}, records)
	if err != nil {
		return Document{}, nil, fmt.Errorf("persist document: %w", err)
	}

	s := m.scope(scope, true)
	s.mu.Lock()
	s.docs[docID] = doc
	for i := range chunks {
		c := chunks[i]
		s.chunks[c.ID] = &c
		s.index.Add(c.ID, docID, tg.Tokenize(c.Text))
	}
	s.mu.Unlock()

	m.logger.Info("document ingested",
		"document", docID, "scope", scope, "name", name,
		"chars", doc.Chars, "chunks", len(chunks),
	)
	return doc, chunks, nil
}

// DeleteDocument removes a document from the store and the index.
// Unknown IDs report deleted=false without error.
func (m *Manager) DeleteDocument(ctx context.Context, id string) (bool, error) {
	scope, ok := m.documentScope(id)
	if !ok {
		// Not indexed; the store may still hold a row (e.g. another
		// delete raced us), so fall through to a plain store delete.
		return m.store.DeleteDocument(ctx, id)
	}

	op := m.scopeOp(scope)
	op.Lock()
	defer op.Unlock()

	deleted, err := m.store.DeleteDocument(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}

	if s := m.scope(scope, false); s != nil {
		s.mu.Lock()
		delete(s.docs, id)
		s.index.RemoveDocument(id)
		for cid, c := range s.chunks {
			if c.DocumentID == id {
				delete(s.chunks, cid)
			}
		}
		s.mu.Unlock()
	}
	return true, nil
}

// documentScope finds which in-memory scope holds a document.
func (m *Manager) documentScope(id string) (string, bool) {
	m.scopesMu.RLock()
	defer m.scopesMu.RUnlock()
	for name, s := range m.scopes {
		s.mu.RLock()
		_, ok := s.docs[id]
		s.mu.RUnlock()
		if ok {
			return name, true
		}
	}
	return "", false
}

// ClearScope drops every document in a scope and reports how many were
// removed. Clearing a group scope never touches the global scope.
func (m *Manager) ClearScope(ctx context.Context, scope string) (int, error) {
	op := m.scopeOp(scope)
	op.Lock()
	defer op.Unlock()

	n, err := m.store.DeleteScope(ctx, scope)
	if err != nil {
		return 0, err
	}

	m.scopesMu.Lock()
	delete(m.scopes, scope)
	m.scopesMu.Unlock()

	m.logger.Info("scope cleared", "scope", scope, "documents", n)
	return n, nil
}

// Documents lists a scope's documents, newest first.
func (m *Manager) Documents(scope string) []Document {
	s := m.scope(scope, false)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Chunks lists a scope's chunks ordered by document and position.
func (m *Manager) Chunks(scope string) []Chunk {
	s := m.scope(scope, false)
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].Position < out[j].Position
	})
	return out
}

// Stats reports what the given group can see: the global scope plus its
// own override scope.
func (m *Manager) Stats(groupID string) Stats {
	var st Stats
	if s := m.scope(ScopeGlobal, false); s != nil {
		s.mu.RLock()
		st.Global = ScopeStats{Documents: len(s.docs), Chunks: len(s.chunks)}
		s.mu.RUnlock()
	}
	if groupID != "" {
		if s := m.scope(GroupScope(groupID), false); s != nil {
			s.mu.RLock()
			st.Group = ScopeStats{Documents: len(s.docs), Chunks: len(s.chunks)}
			s.mu.RUnlock()
		}
	}
	return st
}

// Candidates returns every chunk visible to groupID with BM25 scores for
// queryTokens. Chunks without term overlap come back with a zero score so
// tag-only matches stay rankable.
func (m *Manager) Candidates(groupID string, queryTokens []string) []retriever.Candidate {
	var out []retriever.Candidate
	out = m.appendCandidates(out, ScopeGlobal, false, queryTokens)
	if groupID != "" {
		out = m.appendCandidates(out, GroupScope(groupID), true, queryTokens)
	}
	return out
}

func (m *Manager) appendCandidates(out []retriever.Candidate, scope string, group bool, queryTokens []string) []retriever.Candidate {
	s := m.scope(scope, false)
	if s == nil {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make(map[string]float64)
	for _, sc := range s.index.Score(queryTokens) {
		scores[sc.ChunkID] = sc.Value
	}

	for _, c := range s.chunks {
		out = append(out, retriever.Candidate{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Scope:      c.Scope,
			Group:      group,
			Text:       c.Text,
			Tags:       c.Tags,
			Embedding:  c.Embedding,
			BM25:       scores[c.ID],
		})
	}
	return out
}

// DefaultMode returns the group's configured answer mode, simple when
// unset.
func (m *Manager) DefaultMode(groupID string) prompt.Mode {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	if g, ok := m.settings[groupID]; ok && prompt.ValidMode(g.DefaultMode) {
		return prompt.Mode(g.DefaultMode)
	}
	return prompt.ModeSimple
}

// SetDefaultMode persists a group's answer mode.
func (m *Manager) SetDefaultMode(ctx context.Context, groupID, mode string) error {
	if !prompt.ValidMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	g, ok := m.settings[groupID]
	if !ok {
		g = store.GroupSettingsRecord{GroupID: groupID, CreatedAt: time.Now().UTC()}
	}
	g.DefaultMode = mode
	if err := m.store.SaveGroupSettings(ctx, g); err != nil {
		return err
	}
	m.settings[groupID] = g
	return nil
}

// GroupSettings returns a group's settings, zero-valued when unknown.
func (m *Manager) GroupSettings(groupID string) store.GroupSettingsRecord {
	m.settingsMu.RLock()
	defer m.settingsMu.RUnlock()
	g, ok := m.settings[groupID]
	if !ok {
		return store.GroupSettingsRecord{GroupID: groupID}
	}
	return g
}

func (m *Manager) recordImport(ctx context.Context, groupID string, at time.Time) error {
	m.settingsMu.Lock()
	defer m.settingsMu.Unlock()
	g, ok := m.settings[groupID]
	if !ok {
		g = store.GroupSettingsRecord{GroupID: groupID, CreatedAt: at}
	}
	g.LastImportAt = at
	if err := m.store.SaveGroupSettings(ctx, g); err != nil {
		return err
	}
	m.settings[groupID] = g
	return nil
}

// SetAlias adds or updates one alias mapping and rebuilds the dictionaries.
func (m *Manager) SetAlias(ctx context.Context, alias, canonical, kind string) error {
	if alias == "" || canonical == "" {
		return fmt.Errorf("kb: alias and canonical term are required")
	}
	err := m.store.UpsertAlias(ctx, store.AliasRecord{
		Alias:     alias,
		Canonical: canonical,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return m.reloadDictionaries(ctx)
}

// DeleteAlias removes one alias mapping.
func (m *Manager) DeleteAlias(ctx context.Context, alias string) (bool, error) {
	deleted, err := m.store.DeleteAlias(ctx, alias)
	if err != nil || !deleted {
		return deleted, err
	}
	return true, m.reloadDictionaries(ctx)
}

// Aliases lists the persisted alias dictionary.
func (m *Manager) Aliases(ctx context.Context) ([]store.AliasRecord, error) {
	return m.store.ListAliases(ctx)
}

// SetStatusMapping adds or updates one status term mapping.
func (m *Manager) SetStatusMapping(ctx context.Context, term, subcategory, display string) error {
	if term == "" || subcategory == "" {
		return fmt.Errorf("kb: term and subcategory are required")
	}
	err := m.store.UpsertStatusMapping(ctx, store.StatusMappingRecord{
		Term:        term,
		Subcategory: subcategory,
		Display:     display,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return m.reloadDictionaries(ctx)
}

// DeleteStatusMapping removes one term/subcategory pair.
func (m *Manager) DeleteStatusMapping(ctx context.Context, term, subcategory string) (bool, error) {
	deleted, err := m.store.DeleteStatusMapping(ctx, term, subcategory)
	if err != nil || !deleted {
		return deleted, err
	}
	return true, m.reloadDictionaries(ctx)
}

// StatusMappings lists the persisted status mappings.
func (m *Manager) StatusMappings(ctx context.Context) ([]store.StatusMappingRecord, error) {
	return m.store.ListStatusMappings(ctx)
}

// builtInTemplates are seeded once and always restorable.
var builtInTemplates = map[string]string{
	"document": prompt.DocumentTemplate,
	"help":     prompt.HelpText,
}

// SeedTemplates inserts the built-in templates that are not yet present.
func (m *Manager) SeedTemplates(ctx context.Context) error {
	for name, content := range builtInTemplates {
		if _, err := m.store.GetTemplate(ctx, name); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		err := m.store.SaveTemplate(ctx, store.TemplateRecord{
			Name:      name,
			Content:   content,
			BuiltIn:   true,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Template returns a named template, falling back to the built-in content
// when the store has no row.
func (m *Manager) Template(ctx context.Context, name string) (store.TemplateRecord, error) {
	t, err := m.store.GetTemplate(ctx, name)
	if err == nil {
		return t, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		if content, ok := builtInTemplates[name]; ok {
			return store.TemplateRecord{Name: name, Content: content, BuiltIn: true}, nil
		}
	}
	return store.TemplateRecord{}, err
}

// SaveTemplate writes a template. Built-in names keep their flag.
func (m *Manager) SaveTemplate(ctx context.Context, name, content string) error {
	_, builtIn := builtInTemplates[name]
	return m.store.SaveTemplate(ctx, store.TemplateRecord{
		Name:      name,
		Content:   content,
		BuiltIn:   builtIn,
		UpdatedAt: time.Now().UTC(),
	})
}

// DeleteTemplate removes a custom template. Built-in templates cannot be
// deleted, only overwritten.
func (m *Manager) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	if _, builtIn := builtInTemplates[name]; builtIn {
		return false, fmt.Errorf("%w: %q", ErrBuiltInTemplate, name)
	}
	return m.store.DeleteTemplate(ctx, name)
}

// Templates lists all stored templates.
func (m *Manager) Templates(ctx context.Context) ([]store.TemplateRecord, error) {
	return m.store.ListTemplates(ctx)
}
