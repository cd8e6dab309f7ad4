// Package embedding converts text into fixed-dimension vectors.
//
// The Gateway wraps a pluggable Embedder backend with an in-process
// content-hash cache so identical chunks are never embedded twice,
// regardless of which document they came from.
package embedding

import (
	"context"
	"errors"
)

// ErrEmptyInput indicates Embed was called with no texts.
var ErrEmptyInput = errors.New("no texts to embed")

// Embedder generates embedding vectors for a batch of texts.
// Implementations must return one vector per input text, in order,
// each with exactly Dimension() elements.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the configured embedding dimension.
	Dimension() int
}
