// Package index maintains an in-memory inverted index with BM25 scoring.
//
// One Index covers one scope. The caller (the knowledge base manager)
// serializes access per scope; Index itself holds no locks.
package index

import (
	"math"
	"sort"
)

// Params are the BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

// Score is one scored chunk. Results are ordered by Value descending,
// ties broken by ChunkID ascending so rankings are stable.
type Score struct {
	ChunkID    string
	DocumentID string
	Value      float64
}

// chunkInfo keeps per-chunk statistics plus the term set needed to strip
// the chunk's postings on removal.
type chunkInfo struct {
	docID  string
	length int
	terms  map[string]int
}

// Index is a per-scope inverted index over chunk tokens. postings maps
// each term to its posting list (chunk id to term frequency); document
// frequency is the posting list's size.
type Index struct {
	params Params

	postings map[string]map[string]int
	chunks   map[string]*chunkInfo
	totalLen int
}

// New builds an empty index.
func New(params Params) *Index {
	return &Index{
		params:   params,
		postings: make(map[string]map[string]int),
		chunks:   make(map[string]*chunkInfo),
	}
}

// Add indexes a chunk's tokens. Re-adding an existing chunk ID replaces
// the previous postings.
func (ix *Index) Add(chunkID, docID string, tokens []string) {
	if old, ok := ix.chunks[chunkID]; ok {
		ix.remove(chunkID, old)
	}

	e := &chunkInfo{
		docID:  docID,
		length: len(tokens),
		terms:  make(map[string]int, len(tokens)),
	}
	for _, tok := range tokens {
		e.terms[tok]++
	}
	for term, tf := range e.terms {
		posting, ok := ix.postings[term]
		if !ok {
			posting = make(map[string]int)
			ix.postings[term] = posting
		}
		posting[chunkID] = tf
	}

	ix.chunks[chunkID] = e
	ix.totalLen += e.length
}

// Remove drops a single chunk from the index.
func (ix *Index) Remove(chunkID string) {
	if e, ok := ix.chunks[chunkID]; ok {
		ix.remove(chunkID, e)
	}
}

// RemoveDocument drops every chunk belonging to docID.
func (ix *Index) RemoveDocument(docID string) {
	for id, e := range ix.chunks {
		if e.docID == docID {
			ix.remove(id, e)
		}
	}
}

func (ix *Index) remove(chunkID string, e *chunkInfo) {
	for term := range e.terms {
		posting := ix.postings[term]
		delete(posting, chunkID)
		if len(posting) == 0 {
			delete(ix.postings, term)
		}
	}
	ix.totalLen -= e.length
	delete(ix.chunks, chunkID)
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Score ranks every chunk containing at least one query token.
// Chunks with no overlapping terms are omitted.
func (ix *Index) Score(queryTokens []string) []Score {
	n := len(ix.chunks)
	if n == 0 || len(queryTokens) == 0 {
		return nil
	}
	avgLen := float64(ix.totalLen) / float64(n)

	// Duplicate query tokens contribute once per occurrence, matching
	// how the term frequency saturates on the document side.
	idf := make(map[string]float64, len(queryTokens))
	for _, tok := range queryTokens {
		if _, ok := idf[tok]; ok {
			continue
		}
		df := len(ix.postings[tok])
		if df == 0 {
			continue
		}
		idf[tok] = math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}
	if len(idf) == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for _, tok := range queryTokens {
		w, ok := idf[tok]
		if !ok {
			continue
		}
		for id, tf := range ix.postings[tok] {
			e := ix.chunks[id]
			norm := float64(tf) * (ix.params.K1 + 1) /
				(float64(tf) + ix.params.K1*(1-ix.params.B+ix.params.B*float64(e.length)/avgLen))
			scores[id] += w * norm
		}
	}

	out := make([]Score, 0, len(scores))
	for id, v := range scores {
		out = append(out, Score{ChunkID: id, DocumentID: ix.chunks[id].docID, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
