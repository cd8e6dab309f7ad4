package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/tokens"
)

func TestSplitEmpty(t *testing.T) {
	assert.Nil(t, Split("", 500, 50))
	assert.Nil(t, Split("   \n\t  ", 500, 50))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	got := Split("a short  document\nwith little text", 500, 50)
	require.Len(t, got, 1)
	assert.Equal(t, "a short document with little text", got[0])
}

func TestSplitRespectsWindow(t *testing.T) {
	var b strings.Builder
	for i := range 1000 {
		fmt.Fprintf(&b, "word%04d ", i)
	}

	chunks := Split(b.String(), 100, 10)
	require.Greater(t, len(chunks), 1)
	// Joining spaces add at most a quarter again on top of the
	// per-word window.
	for _, c := range chunks {
		assert.LessOrEqual(t, tokens.Estimate(c), 125)
	}
}

func TestSplitOverlap(t *testing.T) {
	var b strings.Builder
	for i := range 1000 {
		fmt.Fprintf(&b, "word%04d ", i)
	}

	chunks := Split(b.String(), 100, 10)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prevWords := strings.Fields(chunks[i-1])
		firstWord := strings.Fields(chunks[i])[0]
		assert.Contains(t, prevWords, firstWord, "chunk %d should start inside chunk %d", i, i-1)
	}
}

func TestSplitCoversAllWords(t *testing.T) {
	var b strings.Builder
	for i := range 300 {
		fmt.Fprintf(&b, "w%03d ", i)
	}

	chunks := Split(b.String(), 50, 5)
	seen := make(map[string]bool)
	for _, c := range chunks {
		for _, w := range strings.Fields(c) {
			seen[w] = true
		}
	}
	assert.Len(t, seen, 300)
}

func TestSplitSingleOversizedWord(t *testing.T) {
	word := strings.Repeat("x", 4000)
	chunks := Split(word, 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, word, chunks[0])
}

func TestSplitInvalidOverlapFallsBack(t *testing.T) {
	text := strings.Repeat("alpha beta gamma ", 200)
	assert.NotEmpty(t, Split(text, 100, -1))
	assert.NotEmpty(t, Split(text, 100, 100))
	assert.NotEmpty(t, Split(text, 30, 500))
}
