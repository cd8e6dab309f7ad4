// Package assembler builds retrieval context for generation.
//
// Given a user query it checks the cache, fans out to the vector index
// and the graph store concurrently, merges both result sets onto a
// common score scale, deduplicates, sorts deterministically, enforces
// the token budget and caches the outcome. The merge depends only on
// result content, never on which source answered first.
package assembler

import "time"

// Source tags which retrieval path produced a candidate.
type Source string

const (
	SourceVector Source = "vector"
	SourceGraph  Source = "graph"
)

// RetrievalCandidate is a single ranked piece of context. It lives for
// one Assemble call (or its cached copy) and is discarded afterwards.
type RetrievalCandidate struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id,omitempty"`
	Text       string  `json:"text"`
	// Score is the combined weighted score, normalized to [0,1].
	Score   float64       `json:"score"`
	Source  Source        `json:"source"`
	Latency time.Duration `json:"latency"`
}

// AssembledContext is the ordered context handed to the generation
// adapter together with the original query.
type AssembledContext struct {
	Candidates []RetrievalCandidate `json:"candidates"`
	// TokenCount is the estimated total over all kept candidates.
	TokenCount int `json:"token_count"`
	// Truncated is set when candidates were dropped or cut to fit
	// the budget.
	Truncated bool `json:"truncated"`
	// Degraded is set when exactly one retrieval source failed and
	// the context was built from the survivor alone.
	Degraded bool `json:"degraded"`
	// FromCache marks a cache hit; the candidates were assembled by
	// an earlier request, not recomputed.
	FromCache bool `json:"from_cache"`
}
