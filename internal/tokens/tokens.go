// Package tokens estimates token counts for budget accounting.
//
// Counting is heuristic: roughly four characters per token, which tracks
// common BPE tokenizers closely enough for budget and chunking decisions
// without shipping a vocabulary file.
package tokens

// charsPerToken is the average for English text under BPE tokenizers.
const charsPerToken = 4

// Estimate returns the approximate token count of text.
// Empty text estimates to zero; any non-empty text to at least one.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// Truncate cuts text so that Estimate(result) <= budget. A non-positive
// budget returns the empty string. The cut lands on a byte boundary at
// budget*charsPerToken; callers treat the result as display text, not as
// data to re-tokenize.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	limit := budget * charsPerToken
	if len(text) <= limit {
		return text
	}
	// Avoid splitting a multi-byte rune.
	for limit > 0 && text[limit]&0xC0 == 0x80 {
		limit--
	}
	return text[:limit]
}
