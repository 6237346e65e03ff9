// Package tagger implements tokenization and domain tagging for the
// Limbus Company strategy corpus.
//
// Tokenization keeps CJK characters as atomic tokens (unigrams plus
// adjacent-pair bigrams, no stemming) and lowercases ASCII word runs.
// Tagging scans a text for membership in fixed keyword sets per taxonomy
// category, the alias dictionary, and the status-mapping table.
//
// A Tagger is immutable once constructed; when the alias dictionary or
// status mappings change, the owner builds a new Tagger and swaps it in.
// This keeps Tags and Tokenize pure functions of their input.
package tagger

import (
	"sort"
	"strings"
	"unicode"
)

// Category is one of the fixed taxonomy categories a Tag belongs to.
type Category string

const (
	CategoryStatus   Category = "status"
	CategoryMode     Category = "mode"
	CategoryMechanic Category = "mechanic"
	CategoryPersona  Category = "persona"
	CategoryEGO      Category = "ego"
	CategoryTeam     Category = "team"
)

// Tag is a taxonomy label attached to chunks and queries. Tags are used
// purely as a scoring boost, never as a filter.
type Tag struct {
	Category Category
	Name     string
}

// String renders the tag in its canonical "category:name" form.
func (t Tag) String() string {
	return string(t.Category) + ":" + t.Name
}

// ParseTag parses the canonical "category:name" form produced by String.
func ParseTag(s string) (Tag, bool) {
	i := strings.Index(s, ":")
	if i <= 0 || i == len(s)-1 {
		return Tag{}, false
	}
	return Tag{Category: Category(s[:i]), Name: s[i+1:]}, true
}

// StatusMapping sub-categorizes a status-effect term. Many mappings may
// share a term but must have distinct subcategories.
type StatusMapping struct {
	Term        string
	Subcategory string
	Display     string
}

// Tagger assigns tokens and tags. Safe for concurrent use.
type Tagger struct {
	aliases   map[string]string   // lowercased alias -> canonical term
	synonyms  map[string][]string // canonical term -> lowercased aliases
	statusMap []StatusMapping
}

// New builds a Tagger over the current alias dictionary and status-mapping
// table. Both may be nil.
func New(aliases map[string]string, statusMappings []StatusMapping) *Tagger {
	t := &Tagger{
		aliases:  make(map[string]string, len(aliases)),
		synonyms: make(map[string][]string),
	}
	for alias, canonical := range aliases {
		a := strings.ToLower(strings.TrimSpace(alias))
		c := strings.TrimSpace(canonical)
		if a == "" || c == "" {
			continue
		}
		t.aliases[a] = c
		key := strings.ToLower(c)
		t.synonyms[key] = append(t.synonyms[key], a)
	}
	for key := range t.synonyms {
		sort.Strings(t.synonyms[key])
	}
	t.statusMap = append(t.statusMap, statusMappings...)
	return t
}

// Tokenize splits text into search tokens: lowercased ASCII word runs,
// CJK unigrams, and CJK adjacent-pair bigrams.
func (t *Tagger) Tokenize(text string) []string {
	lower := strings.ToLower(text)

	var tokens []string
	var word []rune
	var cjk []rune

	flushWord := func() {
		if len(word) > 0 {
			tokens = append(tokens, string(word))
			word = word[:0]
		}
	}

	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			word = append(word, r)
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		default:
			flushWord()
		}
	}
	flushWord()

	for _, r := range cjk {
		tokens = append(tokens, string(r))
	}
	for i := 0; i+1 < len(cjk); i++ {
		tokens = append(tokens, string(cjk[i])+string(cjk[i+1]))
	}

	return tokens
}

// Tags returns the set of taxonomy tags present in text, sorted by their
// canonical string form. The scan is substring-based: tag presence is
// content-derived, so chunk boundaries never split a tag.
func (t *Tagger) Tags(text string) []Tag {
	lower := strings.ToLower(text)
	seen := make(map[string]Tag)

	add := func(tag Tag) {
		seen[tag.String()] = tag
	}

	scan := func(s string) {
		for name, keywords := range statusKeywords {
			if containsAny(s, keywords) {
				add(Tag{CategoryStatus, name})
			}
		}
		for name, keywords := range modeKeywords {
			if containsAny(s, keywords) {
				add(Tag{CategoryMode, name})
			}
		}
		for name, keywords := range mechanicKeywords {
			if containsAny(s, keywords) {
				add(Tag{CategoryMechanic, name})
			}
		}
		for name, keywords := range personaKeywords {
			if containsAny(s, keywords) {
				add(Tag{CategoryPersona, name})
			}
		}
		for name, keywords := range teamKeywords {
			if containsAny(s, keywords) {
				add(Tag{CategoryTeam, name})
			}
		}
		for canonical, names := range sinnerNames {
			if containsAny(s, names) {
				add(Tag{CategoryPersona, canonical})
			}
		}
		if strings.Contains(s, "ego") || strings.Contains(s, "e.g.o") {
			add(Tag{CategoryEGO, "ego"})
		}
	}

	scan(lower)

	// Aliases contribute the tags of their canonical term: a text that only
	// mentions a synonym still carries the canonical tag.
	for alias, canonical := range t.aliases {
		if strings.Contains(lower, alias) {
			scan(strings.ToLower(canonical))
		}
	}

	// Status mappings add user-defined subcategories.
	for _, m := range t.statusMap {
		if m.Term != "" && strings.Contains(lower, strings.ToLower(m.Term)) {
			add(Tag{CategoryStatus, m.Subcategory})
		}
	}

	tags := make([]Tag, 0, len(seen))
	for _, tag := range seen {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].String() < tags[j].String() })
	return tags
}

// ApplyAliases substitutes every registered synonym in query with its
// canonical term. The result is lowercased.
func (t *Tagger) ApplyAliases(query string) string {
	result := strings.ToLower(query)

	// Longest alias first so "镜像迷宫" wins over "镜像".
	keys := make([]string, 0, len(t.aliases))
	for alias := range t.aliases {
		keys = append(keys, alias)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, alias := range keys {
		result = strings.ReplaceAll(result, alias, strings.ToLower(t.aliases[alias]))
	}
	return result
}

// ExpandTokens widens a query token list: each token that matches an alias
// also contributes its canonical term's tokens, and each token that is a
// canonical term contributes the tokens of all registered synonyms.
func (t *Tagger) ExpandTokens(tokens []string) []string {
	expanded := make([]string, len(tokens), len(tokens)+8)
	copy(expanded, tokens)
	present := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		present[tok] = true
	}

	appendTokens := func(text string) {
		for _, tok := range t.Tokenize(text) {
			if !present[tok] {
				present[tok] = true
				expanded = append(expanded, tok)
			}
		}
	}

	for _, tok := range tokens {
		if canonical, ok := t.aliases[tok]; ok {
			appendTokens(canonical)
		}
		if aliases, ok := t.synonyms[tok]; ok {
			for _, a := range aliases {
				appendTokens(a)
			}
		}
	}
	return expanded
}

// Aliases returns a copy of the alias dictionary.
func (t *Tagger) Aliases() map[string]string {
	out := make(map[string]string, len(t.aliases))
	for k, v := range t.aliases {
		out[k] = v
	}
	return out
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// isCJK reports whether r is a CJK character treated as an atomic token.
func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
