// Package store persists the knowledge base in SQLite. It holds the
// durable copy of documents, chunks, alias and status dictionaries,
// prompt templates, and per-group settings; the in-memory indexes are
// rebuilt from it on startup.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// DocumentRecord is a persisted document.
type DocumentRecord struct {
	ID         string
	Scope      string
	GroupID    string
	Name       string
	RawText    string
	RawTextLen int
	CreatedAt  time.Time
}

// ChunkRecord is a persisted chunk. Tags and Embedding are stored as JSON.
type ChunkRecord struct {
	ID         string
	DocumentID string
	Scope      string
	GroupID    string
	Position   int
	Content    string
	Tags       []string
	Embedding  []float32
	CreatedAt  time.Time
}

// AliasRecord maps a shorthand term to its canonical form.
type AliasRecord struct {
	Alias     string
	Canonical string
	Kind      string
	CreatedAt time.Time
}

// StatusMappingRecord maps a query term to a status subcategory.
type StatusMappingRecord struct {
	Term        string
	Subcategory string
	Display     string
	CreatedAt   time.Time
}

// TemplateRecord is a named prompt template. BuiltIn templates are seeded
// at startup and restored on reset.
type TemplateRecord struct {
	Name      string
	Content   string
	BuiltIn   bool
	UpdatedAt time.Time
}

// GroupSettingsRecord holds per-group preferences.
type GroupSettingsRecord struct {
	GroupID      string
	DefaultMode  string
	LastImportAt time.Time
	CreatedAt    time.Time
}

// Store wraps the SQLite connection. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: pragmas apply per connection, and a pooled
	// ":memory:" database would otherwise be one database per connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveDocument writes a document and its chunks in one transaction,
// replacing any previous chunks for the same document.
func (s *Store) SaveDocument(ctx context.Context, doc DocumentRecord, chunks []ChunkRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, scope, group_id, name, raw_text, raw_text_len, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			scope = excluded.scope,
			group_id = excluded.group_id,
			name = excluded.name,
			raw_text = excluded.raw_text,
			raw_text_len = excluded.raw_text_len`,
		doc.ID, doc.Scope, doc.GroupID, doc.Name, doc.RawText, doc.RawTextLen, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert document %q: %w", doc.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("clear chunks for %q: %w", doc.ID, err)
	}

	for _, c := range chunks {
		tagsJSON, err := json.Marshal(c.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for chunk %q: %w", c.ID, err)
		}
		embeddingJSON := ""
		if len(c.Embedding) > 0 {
			b, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("marshal embedding for chunk %q: %w", c.ID, err)
			}
			embeddingJSON = string(b)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chunks (id, document_id, scope, group_id, position, content, tags_json, embedding_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.DocumentID, c.Scope, c.GroupID, c.Position, c.Content, string(tagsJSON), embeddingJSON, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert chunk %q: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// DeleteDocument removes a document and, via cascade, its chunks.
// Deleting an unknown document is not an error; deleted reports whether
// a row was removed.
func (s *Store) DeleteDocument(ctx context.Context, id string) (deleted bool, err error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete document %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// DeleteScope removes every document (and chunk) in a scope and reports
// how many documents were removed.
func (s *Store) DeleteScope(ctx context.Context, scope string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE scope = ?`, scope)
	if err != nil {
		return 0, fmt.Errorf("delete scope %q: %w", scope, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ListDocuments returns documents in a scope, newest first. Raw text is
// not loaded; use GetDocument for the full record.
func (s *Store) ListDocuments(ctx context.Context, scope string) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, group_id, name, raw_text_len, created_at
		FROM documents WHERE scope = ?
		ORDER BY created_at DESC, id`, scope)
	if err != nil {
		return nil, fmt.Errorf("list documents in %q: %w", scope, err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.Scope, &d.GroupID, &d.Name, &d.RawTextLen, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// ListAllDocuments returns document metadata across every scope, used for
// rebuilding in-memory state on startup.
func (s *Store) ListAllDocuments(ctx context.Context) ([]DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, group_id, name, raw_text_len, created_at
		FROM documents
		ORDER BY scope, created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list all documents: %w", err)
	}
	defer rows.Close()

	var docs []DocumentRecord
	for rows.Next() {
		var d DocumentRecord
		if err := rows.Scan(&d.ID, &d.Scope, &d.GroupID, &d.Name, &d.RawTextLen, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetDocument loads one document including its raw text.
func (s *Store) GetDocument(ctx context.Context, id string) (DocumentRecord, error) {
	var d DocumentRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, scope, group_id, name, raw_text, raw_text_len, created_at
		FROM documents WHERE id = ?`, id).
		Scan(&d.ID, &d.Scope, &d.GroupID, &d.Name, &d.RawText, &d.RawTextLen, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentRecord{}, fmt.Errorf("document %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return DocumentRecord{}, fmt.Errorf("get document %q: %w", id, err)
	}
	return d, nil
}

// ListChunks returns every chunk in a scope ordered by document and
// position, used for rebuilding in-memory indexes.
func (s *Store) ListChunks(ctx context.Context, scope string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, scope, group_id, position, content, tags_json, embedding_json, created_at
		FROM chunks WHERE scope = ?
		ORDER BY document_id, position`, scope)
	if err != nil {
		return nil, fmt.Errorf("list chunks in %q: %w", scope, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListAllChunks returns every chunk across all scopes.
func (s *Store) ListAllChunks(ctx context.Context) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, scope, group_id, position, content, tags_json, embedding_json, created_at
		FROM chunks
		ORDER BY scope, document_id, position`)
	if err != nil {
		return nil, fmt.Errorf("list all chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]ChunkRecord, error) {
	var chunks []ChunkRecord
	for rows.Next() {
		var (
			c             ChunkRecord
			tagsJSON      string
			embeddingJSON string
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Scope, &c.GroupID, &c.Position, &c.Content, &tagsJSON, &embeddingJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if tagsJSON != "" && tagsJSON != "null" {
			if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags for chunk %q: %w", c.ID, err)
			}
		}
		if embeddingJSON != "" {
			if err := json.Unmarshal([]byte(embeddingJSON), &c.Embedding); err != nil {
				return nil, fmt.Errorf("unmarshal embedding for chunk %q: %w", c.ID, err)
			}
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountDocuments reports document and chunk totals for a scope.
func (s *Store) CountDocuments(ctx context.Context, scope string) (docs, chunks int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE scope = ?`, scope).Scan(&docs)
	if err != nil {
		return 0, 0, fmt.Errorf("count documents in %q: %w", scope, err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE scope = ?`, scope).Scan(&chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("count chunks in %q: %w", scope, err)
	}
	return docs, chunks, nil
}

// UpsertAlias writes one alias mapping.
func (s *Store) UpsertAlias(ctx context.Context, a AliasRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (alias, canonical, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(alias) DO UPDATE SET canonical = excluded.canonical, kind = excluded.kind`,
		a.Alias, a.Canonical, a.Kind, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert alias %q: %w", a.Alias, err)
	}
	return nil
}

// DeleteAlias removes one alias; deleted reports whether it existed.
func (s *Store) DeleteAlias(ctx context.Context, alias string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM aliases WHERE alias = ?`, alias)
	if err != nil {
		return false, fmt.Errorf("delete alias %q: %w", alias, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListAliases returns all alias mappings ordered by alias.
func (s *Store) ListAliases(ctx context.Context) ([]AliasRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT alias, canonical, kind, created_at FROM aliases ORDER BY alias`)
	if err != nil {
		return nil, fmt.Errorf("list aliases: %w", err)
	}
	defer rows.Close()

	var out []AliasRecord
	for rows.Next() {
		var a AliasRecord
		if err := rows.Scan(&a.Alias, &a.Canonical, &a.Kind, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alias: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertStatusMapping writes one status term mapping.
func (s *Store) UpsertStatusMapping(ctx context.Context, m StatusMappingRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO status_mappings (term, subcategory, display, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(term, subcategory) DO UPDATE SET display = excluded.display`,
		m.Term, m.Subcategory, m.Display, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert status mapping %q/%q: %w", m.Term, m.Subcategory, err)
	}
	return nil
}

// DeleteStatusMapping removes one term/subcategory pair.
func (s *Store) DeleteStatusMapping(ctx context.Context, term, subcategory string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM status_mappings WHERE term = ? AND subcategory = ?`, term, subcategory)
	if err != nil {
		return false, fmt.Errorf("delete status mapping %q/%q: %w", term, subcategory, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListStatusMappings returns all status mappings ordered by term.
func (s *Store) ListStatusMappings(ctx context.Context) ([]StatusMappingRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT term, subcategory, display, created_at FROM status_mappings ORDER BY term, subcategory`)
	if err != nil {
		return nil, fmt.Errorf("list status mappings: %w", err)
	}
	defer rows.Close()

	var out []StatusMappingRecord
	for rows.Next() {
		var m StatusMappingRecord
		if err := rows.Scan(&m.Term, &m.Subcategory, &m.Display, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status mapping: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveTemplate writes a prompt template.
func (s *Store) SaveTemplate(ctx context.Context, t TemplateRecord) error {
	builtIn := 0
	if t.BuiltIn {
		builtIn = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (name, content, built_in, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		t.Name, t.Content, builtIn, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save template %q: %w", t.Name, err)
	}
	return nil
}

// DeleteTemplate removes one template row by name.
func (s *Store) DeleteTemplate(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete template %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// GetTemplate loads one template by name.
func (s *Store) GetTemplate(ctx context.Context, name string) (TemplateRecord, error) {
	var (
		t       TemplateRecord
		builtIn int
	)
	err := s.db.QueryRowContext(ctx, `SELECT name, content, built_in, updated_at FROM templates WHERE name = ?`, name).
		Scan(&t.Name, &t.Content, &builtIn, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return TemplateRecord{}, fmt.Errorf("template %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return TemplateRecord{}, fmt.Errorf("get template %q: %w", name, err)
	}
	t.BuiltIn = builtIn != 0
	return t, nil
}

// ListTemplates returns all templates ordered by name.
func (s *Store) ListTemplates(ctx context.Context) ([]TemplateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, content, built_in, updated_at FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []TemplateRecord
	for rows.Next() {
		var (
			t       TemplateRecord
			builtIn int
		)
		if err := rows.Scan(&t.Name, &t.Content, &builtIn, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		t.BuiltIn = builtIn != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveGroupSettings writes per-group preferences.
func (s *Store) SaveGroupSettings(ctx context.Context, g GroupSettingsRecord) error {
	var lastImport any
	if !g.LastImportAt.IsZero() {
		lastImport = g.LastImportAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_settings (group_id, default_mode, last_import_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			default_mode = excluded.default_mode,
			last_import_at = excluded.last_import_at`,
		g.GroupID, g.DefaultMode, lastImport, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("save group settings %q: %w", g.GroupID, err)
	}
	return nil
}

// GetGroupSettings loads one group's settings.
func (s *Store) GetGroupSettings(ctx context.Context, groupID string) (GroupSettingsRecord, error) {
	var (
		g          GroupSettingsRecord
		lastImport sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, default_mode, last_import_at, created_at
		FROM group_settings WHERE group_id = ?`, groupID).
		Scan(&g.GroupID, &g.DefaultMode, &lastImport, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return GroupSettingsRecord{}, fmt.Errorf("group settings %q: %w", groupID, ErrNotFound)
	}
	if err != nil {
		return GroupSettingsRecord{}, fmt.Errorf("get group settings %q: %w", groupID, err)
	}
	if lastImport.Valid {
		g.LastImportAt = lastImport.Time
	}
	return g, nil
}

// ListGroupSettings returns settings for every known group.
func (s *Store) ListGroupSettings(ctx context.Context) ([]GroupSettingsRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id, default_mode, last_import_at, created_at FROM group_settings ORDER BY group_id`)
	if err != nil {
		return nil, fmt.Errorf("list group settings: %w", err)
	}
	defer rows.Close()

	var out []GroupSettingsRecord
	for rows.Next() {
		var (
			g          GroupSettingsRecord
			lastImport sql.NullTime
		)
		if err := rows.Scan(&g.GroupID, &g.DefaultMode, &lastImport, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan group settings: %w", err)
		}
		if lastImport.Valid {
			g.LastImportAt = lastImport.Time
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
