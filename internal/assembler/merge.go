package assembler

import (
	"sort"

	"github.com/ragline/ragline/internal/tokens"
)

// rawCandidate carries a candidate before normalization together with
// its source-native score and its position in that source's ranking.
type rawCandidate struct {
	RetrievalCandidate
	raw  float64
	rank int
}

// normalize rescales raw scores onto [0,1] with min-max within one
// source's result set, then applies the source weight. A set whose
// scores are all equal (including a single result) normalizes to 1.
func normalize(set []rawCandidate, weight float64) {
	if len(set) == 0 {
		return
	}
	lo, hi := set[0].raw, set[0].raw
	for _, c := range set[1:] {
		if c.raw < lo {
			lo = c.raw
		}
		if c.raw > hi {
			hi = c.raw
		}
	}
	span := hi - lo
	for i := range set {
		norm := 1.0
		if span > 0 {
			norm = (set[i].raw - lo) / span
		}
		set[i].Score = weight * norm
	}
}

// merge combines both normalized sets, dropping duplicate chunk ids in
// favor of the higher combined score, and sorts descending by score.
// Ties break by source (vector before graph), then by the original
// retrieval order within the source.
func merge(vectorSet, graphSet []rawCandidate, vectorWeight, graphWeight float64) []RetrievalCandidate {
	normalize(vectorSet, vectorWeight)
	normalize(graphSet, graphWeight)

	byChunk := make(map[string]int, len(vectorSet)+len(graphSet))
	combined := make([]rawCandidate, 0, len(vectorSet)+len(graphSet))
	for _, c := range append(append([]rawCandidate{}, vectorSet...), graphSet...) {
		if i, ok := byChunk[c.ChunkID]; ok {
			if c.Score > combined[i].Score {
				combined[i] = c
			}
			continue
		}
		byChunk[c.ChunkID] = len(combined)
		combined = append(combined, c)
	}

	sort.SliceStable(combined, func(i, j int) bool {
		a, b := combined[i], combined[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Source != b.Source {
			return a.Source == SourceVector
		}
		return a.rank < b.rank
	})

	out := make([]RetrievalCandidate, len(combined))
	for i, c := range combined {
		out[i] = c.RetrievalCandidate
	}
	return out
}

// applyBudget keeps candidates in sorted order until the next one would
// exceed the budget, dropping the remainder. A top candidate that alone
// exceeds the full budget is cut down to fit instead of failing the
// request.
func applyBudget(sorted []RetrievalCandidate, budget int) (kept []RetrievalCandidate, total int, truncated bool) {
	for _, c := range sorted {
		est := tokens.Estimate(c.Text)
		if len(kept) == 0 && est > budget {
			c.Text = tokens.Truncate(c.Text, budget)
			kept = append(kept, c)
			total = tokens.Estimate(c.Text)
			return kept, total, true
		}
		if total+est > budget {
			return kept, total, true
		}
		kept = append(kept, c)
		total += est
	}
	return kept, total, false
}
