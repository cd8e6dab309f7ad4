package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "simple question",
			text: "How does photosynthesis work in plants?",
			want: []string{"photosynthesis", "work", "plants"},
		},
		{
			name: "capitalized span kept together",
			text: "The weather in New York City is mild",
			want: []string{"weather", "New York City", "mild"},
		},
		{
			name: "sentence-initial stopword dropped",
			text: "What is chlorophyll",
			want: []string{"chlorophyll"},
		},
		{
			name: "duplicates removed keeping first position",
			text: "plants need water and water needs plants",
			want: []string{"plants", "need", "water", "needs"},
		},
		{
			name: "short fragments dropped",
			text: "go to db on io",
			want: nil,
		},
		{
			name: "empty input",
			text: "",
			want: nil,
		},
	}

	var e KeywordExtractor
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Extract(tt.text))
		})
	}
}

func TestExtractMaxEntities(t *testing.T) {
	e := KeywordExtractor{MaxEntities: 2}
	got := e.Extract("alpha bravo charlie delta")
	assert.Equal(t, []string{"alpha", "bravo"}, got)
}

func TestExtractDeterministic(t *testing.T) {
	var e KeywordExtractor
	text := "Mitochondria produce energy inside Eukaryotic Cells"
	first := e.Extract(text)
	for range 5 {
		assert.Equal(t, first, e.Extract(text))
	}
}
