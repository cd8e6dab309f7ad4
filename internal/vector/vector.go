// Package vector provides the vector index abstraction used for semantic
// similarity search over embedded chunks.
//
// Index is the capability interface consumed by the context assembler and
// the ingestion pipeline; Qdrant is the production backend. Concrete
// backends are swappable without touching orchestration logic.
package vector

import "context"

// Point is an embedded chunk stored in the index.
type Point struct {
	ChunkID    string // UUID, stable across re-ingestion of the same (doc, ordinal)
	DocumentID string
	Ordinal    int
	Text       string
	Vector     []float32
	Metadata   map[string]string
}

// Match is a scored search result. Score is the backend's cosine
// similarity, not yet normalized onto the merge scale.
type Match struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Text       string
	Score      float32
}

// Index is the capability interface over approximate-nearest-neighbor search.
// Implementations convert backend errors to the ragerr taxonomy and must
// honor context cancellation on every call.
type Index interface {
	// Upsert inserts or replaces points, keyed by ChunkID.
	Upsert(ctx context.Context, points []Point) error

	// Search returns up to topK matches ordered by descending similarity.
	// filters restricts results to points whose metadata matches every pair.
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Match, error)

	// Delete removes points by chunk ID. Missing IDs are not an error.
	Delete(ctx context.Context, chunkIDs []string) error
}
