// Package ingest implements the asynchronous document ingestion
// pipeline: chunking, embedding, vector and graph indexing, driven by
// a worker pool pulling jobs from the queue broker.
package ingest

import (
	"strings"

	"github.com/ragline/ragline/internal/tokens"
)

const (
	// DefaultChunkWindow is the target chunk size in estimated tokens.
	DefaultChunkWindow = 500
	// DefaultChunkOverlap is how many trailing tokens of one chunk
	// reappear at the start of the next.
	DefaultChunkOverlap = 50
)

// Split cuts text into overlapping chunks of roughly window estimated
// tokens. Whitespace runs collapse to single spaces; words are never
// split. Overlap values outside [0, window) fall back to the default.
func Split(text string, window, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultChunkWindow
	}
	if overlap < 0 || overlap >= window {
		overlap = DefaultChunkOverlap
		if overlap >= window {
			overlap = 0
		}
	}

	var chunks []string
	start := 0
	for start < len(words) {
		total := 0
		end := start
		for end < len(words) {
			w := tokens.Estimate(words[end])
			if total > 0 && total+w > window {
				break
			}
			total += w
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}

		// Back up so the next chunk repeats the last ~overlap
		// tokens, never past start+1 so progress is guaranteed.
		next := end
		back := 0
		for next-1 > start {
			w := tokens.Estimate(words[next-1])
			if back+w > overlap {
				break
			}
			back += w
			next--
		}
		start = next
	}
	return chunks
}
