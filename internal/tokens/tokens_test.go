package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("hi"))
	assert.Equal(t, 1, Estimate("hiya"))
	assert.Equal(t, 2, Estimate("hello"))
	assert.Equal(t, 25, Estimate(strings.Repeat("a", 100)))
}

func TestTruncate(t *testing.T) {
	text := strings.Repeat("a", 100)

	got := Truncate(text, 10)
	assert.Len(t, got, 40)
	assert.LessOrEqual(t, Estimate(got), 10)

	assert.Equal(t, text, Truncate(text, 25))
	assert.Equal(t, text, Truncate(text, 1000))
	assert.Equal(t, "", Truncate(text, 0))
	assert.Equal(t, "", Truncate(text, -1))
}

func TestTruncateRuneBoundary(t *testing.T) {
	text := strings.Repeat("é", 50)
	got := Truncate(text, 5)
	assert.True(t, len(got) <= 20)
	for _, r := range got {
		assert.NotEqual(t, '�', r)
	}
}
