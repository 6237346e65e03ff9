package kb

import (
	"strings"
	"time"

	"github.com/jhh003/limbusguide/internal/tagger"
)

// ScopeGlobal is the shared knowledge scope visible to every group.
const ScopeGlobal = "global"

// GroupScope returns the scope name for a group's override library.
func GroupScope(groupID string) string {
	return "group:" + groupID
}

// IsGroupScope reports whether scope is a group override scope and, if so,
// which group it belongs to.
func IsGroupScope(scope string) (groupID string, ok bool) {
	if rest, found := strings.CutPrefix(scope, "group:"); found && rest != "" {
		return rest, true
	}
	return "", false
}

// Document is the metadata of an ingested document. Raw text stays in the
// store and is loaded on demand.
type Document struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"`
	GroupID   string    `json:"group_id,omitempty"`
	Name      string    `json:"name"`
	Chars     int       `json:"chars"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Chunk is one indexed fragment of a document.
type Chunk struct {
	ID         string       `json:"id"`
	DocumentID string       `json:"document_id"`
	Scope      string       `json:"scope"`
	GroupID    string       `json:"group_id,omitempty"`
	Position   int          `json:"position"`
	Text       string       `json:"text"`
	Tags       []tagger.Tag `json:"-"`
	Embedding  []float32    `json:"-"`
}

// TagStrings returns the chunk's tags in canonical string form.
func (c Chunk) TagStrings() []string {
	if len(c.Tags) == 0 {
		return nil
	}
	out := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		out[i] = t.String()
	}
	return out
}

// ScopeStats counts the contents of one scope.
type ScopeStats struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// Stats summarizes what a group can see.
type Stats struct {
	Global ScopeStats `json:"global"`
	Group  ScopeStats `json:"group"`
}
