package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testDoc(id, scope string) DocumentRecord {
	return DocumentRecord{
		ID:         id,
		Scope:      scope,
		Name:       "guide-" + id,
		RawText:    "燃烧队配队思路",
		RawTextLen: 7,
		CreatedAt:  time.Now().UTC(),
	}
}

func testChunk(id, docID, scope string, pos int) ChunkRecord {
	return ChunkRecord{
		ID:         id,
		DocumentID: docID,
		Scope:      scope,
		Position:   pos,
		Content:    "燃烧队配队思路",
		Tags:       []string{"status:burn", "team:team-build"},
		Embedding:  []float32{0.1, 0.2, 0.3},
		CreatedAt:  time.Now().UTC(),
	}
}

func TestSaveAndLoadDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("d1", "global")
	chunks := []ChunkRecord{
		testChunk("d1:0", "d1", "global", 0),
		testChunk("d1:1", "d1", "global", 1),
	}
	require.NoError(t, s.SaveDocument(ctx, doc, chunks))

	got, err := s.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc.Name, got.Name)
	assert.Equal(t, doc.RawText, got.RawText)

	loaded, err := s.ListChunks(ctx, "global")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "d1:0", loaded[0].ID)
	assert.Equal(t, []string{"status:burn", "team:team-build"}, loaded[0].Tags)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, loaded[0].Embedding)
}

func TestSaveDocumentReplacesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := testDoc("d1", "global")
	require.NoError(t, s.SaveDocument(ctx, doc, []ChunkRecord{
		testChunk("d1:0", "d1", "global", 0),
		testChunk("d1:1", "d1", "global", 1),
	}))
	require.NoError(t, s.SaveDocument(ctx, doc, []ChunkRecord{
		testChunk("d1:0", "d1", "global", 0),
	}))

	chunks, err := s.ListChunks(ctx, "global")
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteDocumentCascadesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "global"), []ChunkRecord{
		testChunk("d1:0", "d1", "global", 0),
	}))

	deleted, err := s.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.True(t, deleted)

	chunks, err := s.ListChunks(ctx, "global")
	require.NoError(t, err)
	assert.Empty(t, chunks)

	deleted, err = s.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteScopeLeavesOtherScopes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveDocument(ctx, testDoc("d1", "group:a"), []ChunkRecord{testChunk("d1:0", "d1", "group:a", 0)}))
	require.NoError(t, s.SaveDocument(ctx, testDoc("d2", "global"), []ChunkRecord{testChunk("d2:0", "d2", "global", 0)}))

	n, err := s.DeleteScope(ctx, "group:a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	docs, chunks, err := s.CountDocuments(ctx, "global")
	require.NoError(t, err)
	assert.Equal(t, 1, docs)
	assert.Equal(t, 1, chunks)

	docs, chunks, err = s.CountDocuments(ctx, "group:a")
	require.NoError(t, err)
	assert.Zero(t, docs)
	assert.Zero(t, chunks)
}

func TestAliasCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertAlias(ctx, AliasRecord{Alias: "md", Canonical: "镜牢", Kind: "mode", CreatedAt: now}))
	require.NoError(t, s.UpsertAlias(ctx, AliasRecord{Alias: "md", Canonical: "镜像迷宫", Kind: "mode", CreatedAt: now}))

	aliases, err := s.ListAliases(ctx)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "镜像迷宫", aliases[0].Canonical)

	deleted, err := s.DeleteAlias(ctx, "md")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteAlias(ctx, "md")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStatusMappingCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertStatusMapping(ctx, StatusMappingRecord{Term: "烧伤", Subcategory: "burn", Display: "燃烧", CreatedAt: now}))
	require.NoError(t, s.UpsertStatusMapping(ctx, StatusMappingRecord{Term: "烧伤", Subcategory: "burn", Display: "烧伤", CreatedAt: now}))

	mappings, err := s.ListStatusMappings(ctx)
	require.NoError(t, err)
	require.Len(t, mappings, 1)
	assert.Equal(t, "烧伤", mappings[0].Display)

	deleted, err := s.DeleteStatusMapping(ctx, "烧伤", "burn")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTemplateRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tpl := TemplateRecord{Name: "answer", Content: "回答模板", BuiltIn: true, UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.SaveTemplate(ctx, tpl))

	got, err := s.GetTemplate(ctx, "answer")
	require.NoError(t, err)
	assert.Equal(t, tpl.Content, got.Content)
	assert.True(t, got.BuiltIn)

	_, err = s.GetTemplate(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGroupSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.SaveGroupSettings(ctx, GroupSettingsRecord{GroupID: "g1", DefaultMode: "detailed", CreatedAt: now}))

	got, err := s.GetGroupSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "detailed", got.DefaultMode)
	assert.True(t, got.LastImportAt.IsZero())

	require.NoError(t, s.SaveGroupSettings(ctx, GroupSettingsRecord{GroupID: "g1", DefaultMode: "concise", LastImportAt: now, CreatedAt: now}))
	got, err = s.GetGroupSettings(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "concise", got.DefaultMode)
	assert.False(t, got.LastImportAt.IsZero())

	_, err = s.GetGroupSettings(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListGroupSettings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
