// Package chunker splits documents into overlapping fixed-size fragments.
//
// Slicing is greedy and purely positional: start at rune 0, take
// chunk-size runes, advance by (chunk size − overlap), repeat. The same
// (text, chunk size, overlap) input always yields identical boundaries,
// which makes re-ingestion idempotent.
package chunker

import (
	"errors"
	"fmt"

	"github.com/jhh003/limbusguide/internal/tagger"
)

// ErrInvalidParams indicates chunk size/overlap are inconsistent.
var ErrInvalidParams = errors.New("chunker: invalid parameters")

// Params controls chunk boundaries. Sizes are in runes so CJK text is not
// split mid-character.
type Params struct {
	ChunkSize int
	Overlap   int
}

// Fragment is one slice of a document, with its tag set derived from the
// fragment content.
type Fragment struct {
	// Position is the fragment's ordinal within the document, starting at 0.
	Position int

	// Start and End are rune offsets into the original document, [Start, End).
	Start int
	End   int

	Text string
	Tags []tagger.Tag
}

// Chunker splits document text. Safe for concurrent use.
type Chunker struct {
	params Params
	tagger *tagger.Tagger
}

// New validates params and builds a Chunker. Overlap must be smaller than
// the chunk size; violations are configuration errors, rejected before any
// ingestion.
func New(params Params, tg *tagger.Tagger) (*Chunker, error) {
	if params.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidParams, params.ChunkSize)
	}
	if params.Overlap < 0 {
		return nil, fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidParams, params.Overlap)
	}
	if params.Overlap >= params.ChunkSize {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than chunk size %d", ErrInvalidParams, params.Overlap, params.ChunkSize)
	}
	return &Chunker{params: params, tagger: tg}, nil
}

// Split slices text into overlapping fragments. Empty text yields no
// fragments; text shorter than the chunk size yields exactly one.
func (c *Chunker) Split(text string) []Fragment {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.params.ChunkSize - c.params.Overlap
	var fragments []Fragment

	for start := 0; ; start += step {
		end := start + c.params.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		piece := string(runes[start:end])
		fragments = append(fragments, Fragment{
			Position: len(fragments),
			Start:    start,
			End:      end,
			Text:     piece,
			Tags:     c.tagger.Tags(piece),
		})

		if end == len(runes) {
			break
		}
	}

	return fragments
}

// Params returns the chunking parameters in use.
func (c *Chunker) Params() Params {
	return c.params
}
