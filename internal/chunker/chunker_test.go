package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhh003/limbusguide/internal/tagger"
)

func newTestChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := New(Params{ChunkSize: size, Overlap: overlap}, tagger.New(nil, nil))
	require.NoError(t, err)
	return c
}

func TestNewRejectsBadParams(t *testing.T) {
	tg := tagger.New(nil, nil)

	tests := []struct {
		name   string
		params Params
	}{
		{"zero size", Params{ChunkSize: 0, Overlap: 0}},
		{"negative size", Params{ChunkSize: -1, Overlap: 0}},
		{"negative overlap", Params{ChunkSize: 100, Overlap: -1}},
		{"overlap equals size", Params{ChunkSize: 100, Overlap: 100}},
		{"overlap exceeds size", Params{ChunkSize: 100, Overlap: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params, tg)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestSplitBoundaries(t *testing.T) {
	c := newTestChunker(t, 800, 120)

	text := strings.Repeat("甲", 2000)
	fragments := c.Split(text)
	require.Len(t, fragments, 3)

	wantBounds := [][2]int{{0, 800}, {680, 1480}, {1360, 2000}}
	for i, f := range fragments {
		assert.Equal(t, i, f.Position)
		assert.Equal(t, wantBounds[i][0], f.Start, "fragment %d start", i)
		assert.Equal(t, wantBounds[i][1], f.End, "fragment %d end", i)
		assert.Equal(t, f.End-f.Start, len([]rune(f.Text)))
	}
}

func TestSplitShortDocumentSingleFragment(t *testing.T) {
	c := newTestChunker(t, 800, 120)

	fragments := c.Split("燃烧队的基础思路")
	require.Len(t, fragments, 1)
	assert.Equal(t, 0, fragments[0].Start)
	assert.Equal(t, len([]rune("燃烧队的基础思路")), fragments[0].End)
	assert.Equal(t, "燃烧队的基础思路", fragments[0].Text)
}

func TestSplitEmptyText(t *testing.T) {
	c := newTestChunker(t, 800, 120)
	assert.Empty(t, c.Split(""))
}

func TestSplitOverlapReconstruction(t *testing.T) {
	c := newTestChunker(t, 10, 3)

	runes := make([]rune, 0, 37)
	for i := range 37 {
		runes = append(runes, rune('a'+i%26))
	}
	text := string(runes)

	fragments := c.Split(text)
	require.NotEmpty(t, fragments)

	// Dropping each fragment's leading overlap reproduces the document.
	var b strings.Builder
	for i, f := range fragments {
		r := []rune(f.Text)
		if i == 0 {
			b.WriteString(string(r))
			continue
		}
		b.WriteString(string(r[3:]))
	}
	assert.Equal(t, text, b.String())

	// Adjacent fragments share exactly the overlap.
	for i := 1; i < len(fragments); i++ {
		prev := []rune(fragments[i-1].Text)
		cur := []rune(fragments[i].Text)
		assert.Equal(t, string(prev[len(prev)-3:]), string(cur[:3]))
	}
}

func TestSplitDeterministic(t *testing.T) {
	c := newTestChunker(t, 50, 10)
	text := strings.Repeat("燃烧队配队思路与脆弱机制详解 ", 30)

	first := c.Split(text)
	for range 5 {
		assert.Equal(t, first, c.Split(text))
	}
}

func TestSplitTagsFragments(t *testing.T) {
	c, err := New(Params{ChunkSize: 800, Overlap: 120}, tagger.New(nil, nil))
	require.NoError(t, err)

	fragments := c.Split("燃烧队怎么配")
	require.Len(t, fragments, 1)

	var names []string
	for _, tag := range fragments[0].Tags {
		names = append(names, tag.String())
	}
	assert.Contains(t, names, "status:burn")
}
