package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/entity"
	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

type mockDocStore struct {
	docs        map[uuid.UUID]*store.Document
	chunks      map[uuid.UUID][]store.Chunk
	processed   map[int][]string
	deadLetters []string
	getErr      error
}

func newMockDocStore() *mockDocStore {
	return &mockDocStore{
		docs:      make(map[uuid.UUID]*store.Document),
		chunks:    make(map[uuid.UUID][]store.Chunk),
		processed: make(map[int][]string),
	}
}

func (m *mockDocStore) addDoc(content string) uuid.UUID {
	id := uuid.New()
	m.docs[id] = &store.Document{ID: id, Content: content, Status: store.StatusPending}
	return id
}

func (m *mockDocStore) GetDocument(_ context.Context, id uuid.UUID) (*store.Document, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, ragerr.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (m *mockDocStore) TransitionStatus(_ context.Context, id uuid.UUID, to store.DocumentStatus) error {
	doc := m.docs[id]
	if !store.CanTransition(doc.Status, to) {
		return ragerr.Integrity("invalid transition %s -> %s", doc.Status, to)
	}
	doc.Status = to
	return nil
}

func (m *mockDocStore) ReplaceChunks(_ context.Context, documentID uuid.UUID, chunks []store.Chunk) error {
	m.chunks[documentID] = chunks
	return nil
}

func (m *mockDocStore) MarkChunkProcessed(_ context.Context, _ uuid.UUID, ordinal int, mentions []string) error {
	m.processed[ordinal] = mentions
	return nil
}

func (m *mockDocStore) AddDeadLetter(_ context.Context, _ uuid.UUID, _ int, lastError string, _ []byte) error {
	m.deadLetters = append(m.deadLetters, lastError)
	return nil
}

type mockVectorIndex struct {
	upserts [][]vector.Point
	err     error
}

func (m *mockVectorIndex) Upsert(_ context.Context, points []vector.Point) error {
	if m.err != nil {
		return m.err
	}
	m.upserts = append(m.upserts, points)
	return nil
}

type mockGraphWriter struct {
	entities      []graph.Entity
	relationships []graph.Relationship
	err           error
}

func (m *mockGraphWriter) UpsertEntity(_ context.Context, e graph.Entity) error {
	if m.err != nil {
		return m.err
	}
	m.entities = append(m.entities, e)
	return nil
}

func (m *mockGraphWriter) UpsertRelationship(_ context.Context, r graph.Relationship) error {
	if m.err != nil {
		return m.err
	}
	m.relationships = append(m.relationships, r)
	return nil
}

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func newPipeline(docs *mockDocStore, vectors *mockVectorIndex, graphs *mockGraphWriter, embedder *stubEmbedder) *Pipeline {
	return NewPipeline(docs, embedder, vectors, graphs, entity.KeywordExtractor{}, Config{
		ChunkWindow:  50,
		ChunkOverlap: 5,
	}, log.NewNop())
}

func TestProcessSuccess(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("Chlorophyll absorbs sunlight during photosynthesis inside plant leaves")
	vectors := &mockVectorIndex{}
	graphs := &mockGraphWriter{}

	err := newPipeline(docs, vectors, graphs, &stubEmbedder{}).Process(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, store.StatusIndexed, docs.docs[id].Status)
	require.Len(t, vectors.upserts, 1)
	require.NotEmpty(t, docs.chunks[id])
	assert.NotEmpty(t, graphs.entities)
	assert.NotEmpty(t, docs.processed)

	for i, p := range vectors.upserts[0] {
		assert.Equal(t, store.ChunkID(id, i), p.ChunkID)
		assert.Equal(t, id.String(), p.DocumentID)
	}
}

func TestProcessIdempotent(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("Mitochondria produce energy for Eukaryotic Cells through respiration")
	vectors := &mockVectorIndex{}
	graphs := &mockGraphWriter{}
	p := newPipeline(docs, vectors, graphs, &stubEmbedder{})

	require.NoError(t, p.Process(context.Background(), id))
	firstChunks := docs.chunks[id]
	require.NoError(t, p.Process(context.Background(), id))

	require.Len(t, vectors.upserts, 2)
	firstIDs := pointIDs(vectors.upserts[0])
	secondIDs := pointIDs(vectors.upserts[1])
	assert.Equal(t, firstIDs, secondIDs)
	assert.Equal(t, firstChunks, docs.chunks[id])
}

func pointIDs(points []vector.Point) []string {
	ids := make([]string, len(points))
	for i, p := range points {
		ids[i] = p.ChunkID
	}
	return ids
}

func TestProcessEmptyDocument(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("   ")

	err := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, &stubEmbedder{}).Process(context.Background(), id)
	require.ErrorIs(t, err, ragerr.ErrDataIntegrity)
	assert.False(t, ragerr.IsRetryable(err))
}

func TestProcessUnknownDocument(t *testing.T) {
	docs := newMockDocStore()

	err := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, &stubEmbedder{}).Process(context.Background(), uuid.New())
	require.ErrorIs(t, err, ragerr.ErrDataIntegrity)
}

func TestProcessTransientStoreLookup(t *testing.T) {
	docs := newMockDocStore()
	docs.getErr = ragerr.Transient("query", errors.New("connection reset"))

	err := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, &stubEmbedder{}).Process(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, ragerr.IsRetryable(err))
}

func TestProcessEmbeddingFailureIsRetryable(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("some document content for embedding")
	embedder := &stubEmbedder{err: ragerr.Transient("embed", errors.New("rate limited"))}

	err := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, embedder).Process(context.Background(), id)
	require.Error(t, err)
	assert.True(t, ragerr.IsRetryable(err))
	assert.Equal(t, store.StatusEmbedding, docs.docs[id].Status)
}

func TestProcessResumesAfterCrash(t *testing.T) {
	// A redelivered job finds the document mid-pipeline and must
	// finish without an invalid status transition.
	docs := newMockDocStore()
	id := docs.addDoc("restartable document content with several words")
	docs.docs[id].Status = store.StatusEmbedding

	err := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, &stubEmbedder{}).Process(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIndexed, docs.docs[id].Status)
}

func TestProcessGraphWritesCoOccurrence(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("chlorophyll absorbs sunlight")
	graphs := &mockGraphWriter{}

	require.NoError(t, newPipeline(docs, &mockVectorIndex{}, graphs, &stubEmbedder{}).Process(context.Background(), id))

	require.Len(t, graphs.entities, 3)
	require.Len(t, graphs.relationships, 2)
	assert.Equal(t, "chlorophyll", graphs.relationships[0].From)
	assert.Equal(t, "absorbs", graphs.relationships[0].To)
	assert.Equal(t, store.ChunkID(id, 0), graphs.relationships[0].ChunkID)
}

func TestMarkFailed(t *testing.T) {
	docs := newMockDocStore()
	id := docs.addDoc("doomed content")
	docs.docs[id].Status = store.StatusEmbedding
	p := newPipeline(docs, &mockVectorIndex{}, &mockGraphWriter{}, &stubEmbedder{})

	err := p.MarkFailed(context.Background(), id, 5, errors.New("exhausted"), []byte(`{"document_id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, docs.docs[id].Status)
	require.Len(t, docs.deadLetters, 1)
	assert.Equal(t, "exhausted", docs.deadLetters[0])
}
