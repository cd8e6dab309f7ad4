package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/ragerr"
)

// Dimension checks run before any RPC, so they are testable without a server.

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	q := &Qdrant{collection: "chunks", dimension: 4, logger: log.NewNop()}

	err := q.Upsert(context.Background(), []Point{
		{ChunkID: "c1", DocumentID: "d1", Vector: []float32{1, 2}},
	})
	if !errors.Is(err, ragerr.ErrDataIntegrity) {
		t.Errorf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	q := &Qdrant{collection: "chunks", dimension: 4, logger: log.NewNop()}

	_, err := q.Search(context.Background(), []float32{1, 2, 3}, 10, nil)
	if !errors.Is(err, ragerr.ErrDataIntegrity) {
		t.Errorf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestUpsertEmptyIsNoop(t *testing.T) {
	q := &Qdrant{collection: "chunks", dimension: 4, logger: log.NewNop()}
	if err := q.Upsert(context.Background(), nil); err != nil {
		t.Errorf("empty upsert should be a no-op, got %v", err)
	}
}

func TestDeleteEmptyIsNoop(t *testing.T) {
	q := &Qdrant{collection: "chunks", dimension: 4, logger: log.NewNop()}
	if err := q.Delete(context.Background(), nil); err != nil {
		t.Errorf("empty delete should be a no-op, got %v", err)
	}
}
