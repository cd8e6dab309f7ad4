// Package entity provides a deterministic keyword-based entity extractor.
//
// It satisfies the "seed entities from query text" contract consumed by
// the context assembler and the ingestion pipeline. The extractor is
// intentionally simple: multi-word capitalized spans are kept as single
// entities, remaining tokens are lowercased, stopword-filtered keywords.
// A smarter (e.g. model-backed) extractor can replace it behind the same
// method set without touching orchestration code.
package entity

import (
	"strings"
	"unicode"
)

// stopwords are tokens that never become entities.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "can": true, "could": true,
	"did": true, "do": true, "does": true, "for": true, "from": true,
	"had": true, "has": true, "have": true, "how": true, "i": true,
	"if": true, "in": true, "into": true, "is": true, "it": true,
	"its": true, "my": true, "not": true, "of": true, "on": true,
	"or": true, "our": true, "that": true, "the": true, "their": true,
	"there": true, "these": true, "they": true, "this": true, "to": true,
	"was": true, "we": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "will": true,
	"with": true, "would": true, "you": true, "your": true,
}

// minKeywordLen filters out short fragments like "ok" or "go" that are
// rarely useful graph seeds.
const minKeywordLen = 3

// KeywordExtractor extracts entity seeds from free text.
// The zero value is ready to use and safe for concurrent use.
type KeywordExtractor struct {
	// MaxEntities caps the result; 0 means unlimited.
	MaxEntities int
}

// Extract returns entity seeds in order of first appearance, without
// duplicates. Consecutive capitalized words form a single multi-word
// entity ("New York" stays together); everything else is reduced to
// lowercased keywords.
func (e KeywordExtractor) Extract(text string) []string {
	tokens := tokenize(text)

	var entities []string
	seen := make(map[string]bool)

	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		entities = append(entities, s)
	}

	for i := 0; i < len(tokens); i++ {
		if isCapitalized(tokens[i]) {
			// Greedily join a run of capitalized tokens.
			j := i
			for j+1 < len(tokens) && isCapitalized(tokens[j+1]) {
				j++
			}
			span := strings.Join(tokens[i:j+1], " ")
			lower := strings.ToLower(span)
			if j > i || (!stopwords[lower] && len(lower) >= minKeywordLen) {
				add(span)
			}
			i = j
			continue
		}

		lower := strings.ToLower(tokens[i])
		if !stopwords[lower] && len(lower) >= minKeywordLen {
			add(lower)
		}
	}

	if e.MaxEntities > 0 && len(entities) > e.MaxEntities {
		entities = entities[:e.MaxEntities]
	}
	return entities
}

// tokenize splits text on non-letter/digit boundaries.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// isCapitalized reports whether a token starts with an uppercase letter.
func isCapitalized(token string) bool {
	for _, r := range token {
		return unicode.IsUpper(r)
	}
	return false
}
