package index

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex() *Index {
	return New(Params{K1: 1.5, B: 0.75})
}

func TestScoreEmptyIndex(t *testing.T) {
	ix := newTestIndex()
	assert.Nil(t, ix.Score([]string{"burn"}))
}

func TestScoreNoMatchingTerms(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn", "team"})
	assert.Nil(t, ix.Score([]string{"sinking"}))
}

func TestScoreRanksByRelevance(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn", "burn", "team", "guide"})
	ix.Add("c2", "d1", []string{"burn", "team", "guide", "notes"})
	ix.Add("c3", "d2", []string{"sinking", "team", "guide", "notes"})

	got := ix.Score([]string{"burn"})
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ChunkID)
	assert.Equal(t, "c2", got[1].ChunkID)
	assert.Greater(t, got[0].Value, got[1].Value)
	assert.Equal(t, "d1", got[0].DocumentID)
}

func TestScoreMatchesReferenceFormula(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn", "team"})
	ix.Add("c2", "d1", []string{"team", "guide"})

	got := ix.Score([]string{"burn"})
	require.Len(t, got, 1)

	// N=2, df=1, both chunks length 2, avgdl=2, tf=1.
	idf := math.Log((2-1+0.5)/(1+0.5) + 1)
	norm := 1 * (1.5 + 1) / (1 + 1.5*(1-0.75+0.75*1))
	assert.InDelta(t, idf*norm, got[0].Value, 1e-12)
}

func TestScoreTieBreaksByChunkID(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c2", "d1", []string{"burn", "team"})
	ix.Add("c1", "d1", []string{"burn", "team"})

	got := ix.Score([]string{"burn"})
	require.Len(t, got, 2)
	assert.Equal(t, got[0].Value, got[1].Value)
	assert.Equal(t, "c1", got[0].ChunkID)
	assert.Equal(t, "c2", got[1].ChunkID)
}

func TestAddReplacesExistingChunk(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn"})
	ix.Add("c1", "d1", []string{"sinking"})

	assert.Equal(t, 1, ix.Len())
	assert.Nil(t, ix.Score([]string{"burn"}))
	assert.Len(t, ix.Score([]string{"sinking"}), 1)
}

func TestRemoveDocument(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn"})
	ix.Add("c2", "d1", []string{"burn", "team"})
	ix.Add("c3", "d2", []string{"burn"})

	ix.RemoveDocument("d1")

	assert.Equal(t, 1, ix.Len())
	got := ix.Score([]string{"burn"})
	require.Len(t, got, 1)
	assert.Equal(t, "c3", got[0].ChunkID)
}

func TestPostingListMaintenance(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn", "team"})
	ix.Add("c2", "d2", []string{"burn", "guide"})

	require.Len(t, ix.postings["burn"], 2)
	assert.Equal(t, 1, ix.postings["burn"]["c1"])

	ix.Remove("c1")
	require.Len(t, ix.postings["burn"], 1)
	_, ok := ix.postings["team"]
	assert.False(t, ok, "empty posting list should be dropped")

	got := ix.Score([]string{"burn"})
	require.Len(t, got, 1)
	assert.Equal(t, "c2", got[0].ChunkID)

	ix.Remove("c2")
	assert.Empty(t, ix.postings)
}

func TestRemoveChunk(t *testing.T) {
	ix := newTestIndex()
	ix.Add("c1", "d1", []string{"burn"})
	ix.Remove("c1")
	ix.Remove("c1")

	assert.Equal(t, 0, ix.Len())
	assert.Nil(t, ix.Score([]string{"burn"}))
}
