package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/tokens"
	"github.com/ragline/ragline/internal/vector"
)

// DocumentStore is the slice of the relational store the pipeline uses.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, to store.DocumentStatus) error
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []store.Chunk) error
	MarkChunkProcessed(ctx context.Context, documentID uuid.UUID, ordinal int, mentions []string) error
	AddDeadLetter(ctx context.Context, documentID uuid.UUID, attempts int, lastError string, payload []byte) error
}

// Embedder embeds chunk texts, typically through the caching gateway.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is the slice of the vector index the pipeline uses.
type VectorIndex interface {
	Upsert(ctx context.Context, points []vector.Point) error
}

// GraphWriter is the slice of the graph store the pipeline uses.
type GraphWriter interface {
	UpsertEntity(ctx context.Context, e graph.Entity) error
	UpsertRelationship(ctx context.Context, r graph.Relationship) error
}

// Extractor supplies entity mentions from chunk text.
type Extractor interface {
	Extract(text string) []string
}

// Config holds the chunking parameters.
type Config struct {
	ChunkWindow  int
	ChunkOverlap int
	// MaxEntitiesPerChunk bounds graph writes per chunk; 0 uses the
	// package default.
	MaxEntitiesPerChunk int
}

const defaultMaxEntitiesPerChunk = 16

// Pipeline turns one pending document into indexed chunks. It is
// stateless across calls; every method is safe for concurrent use.
type Pipeline struct {
	store     DocumentStore
	embedder  Embedder
	vectors   VectorIndex
	graphs    GraphWriter
	extractor Extractor
	cfg       Config
	logger    *slog.Logger
}

// NewPipeline builds a Pipeline with the given backends.
func NewPipeline(docs DocumentStore, embedder Embedder, vectors VectorIndex, graphs GraphWriter, extractor Extractor, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.ChunkWindow <= 0 {
		cfg.ChunkWindow = DefaultChunkWindow
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultChunkOverlap
	}
	if cfg.MaxEntitiesPerChunk <= 0 {
		cfg.MaxEntitiesPerChunk = defaultMaxEntitiesPerChunk
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:     docs,
		embedder:  embedder,
		vectors:   vectors,
		graphs:    graphs,
		extractor: extractor,
		cfg:       cfg,
		logger:    logger,
	}
}

// Process runs the full ingestion of one document: chunk, persist
// chunks, embed, index vectors, extract and upsert graph facts, then
// mark the document indexed.
//
// Chunk ids derive deterministically from (document id, ordinal), so a
// repeated run replaces index entries instead of duplicating them. The
// caller classifies the returned error with ragerr.IsRetryable.
func (p *Pipeline) Process(ctx context.Context, documentID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, ragerr.ErrNotFound) {
			return ragerr.Integrity("document %s: %v", documentID, err)
		}
		return err
	}

	// A redelivered job may find the document mid-pipeline after a
	// worker crash; restart in place without re-entering chunking.
	if doc.Status != store.StatusChunking && doc.Status != store.StatusEmbedding {
		if err := p.transition(ctx, doc, store.StatusChunking); err != nil {
			return err
		}
	}

	texts := Split(doc.Content, p.cfg.ChunkWindow, p.cfg.ChunkOverlap)
	if len(texts) == 0 {
		return ragerr.Integrity("document %s has no chunkable content", documentID)
	}

	chunks := make([]store.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = store.Chunk{
			DocumentID: documentID,
			Ordinal:    i,
			Text:       text,
			TokenCount: tokens.Estimate(text),
		}
	}
	if err := p.store.ReplaceChunks(ctx, documentID, chunks); err != nil {
		return err
	}
	if err := p.transition(ctx, doc, store.StatusEmbedding); err != nil {
		return err
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding document %s: %w", documentID, err)
	}

	points := make([]vector.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vector.Point{
			ChunkID:    store.ChunkID(documentID, c.Ordinal),
			DocumentID: documentID.String(),
			Ordinal:    c.Ordinal,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}
	if err := p.vectors.Upsert(ctx, points); err != nil {
		return err
	}

	for _, c := range chunks {
		mentions, err := p.indexGraph(ctx, documentID, c)
		if err != nil {
			return err
		}
		if err := p.store.MarkChunkProcessed(ctx, documentID, c.Ordinal, mentions); err != nil {
			return err
		}
	}

	if err := p.transition(ctx, doc, store.StatusIndexed); err != nil {
		return err
	}
	p.logger.Info("document indexed",
		"document_id", documentID,
		"chunks", len(chunks))
	return nil
}

// indexGraph extracts entity mentions from one chunk and upserts them
// with co-occurrence edges between adjacent mentions.
func (p *Pipeline) indexGraph(ctx context.Context, documentID uuid.UUID, c store.Chunk) ([]string, error) {
	mentions := p.extractor.Extract(c.Text)
	if len(mentions) > p.cfg.MaxEntitiesPerChunk {
		mentions = mentions[:p.cfg.MaxEntitiesPerChunk]
	}

	chunkID := store.ChunkID(documentID, c.Ordinal)
	for _, name := range mentions {
		if err := p.graphs.UpsertEntity(ctx, graph.Entity{Name: name, Kind: "keyword"}); err != nil {
			return nil, err
		}
	}
	for i := 1; i < len(mentions); i++ {
		rel := graph.Relationship{
			From:       mentions[i-1],
			To:         mentions[i],
			Relation:   "co_occurs_with",
			ChunkID:    chunkID,
			DocumentID: documentID.String(),
		}
		if err := p.graphs.UpsertRelationship(ctx, rel); err != nil {
			return nil, err
		}
	}
	return mentions, nil
}

// MarkFailed moves the document to failed status and records a
// dead-letter entry. Called by the worker once the retry budget is
// exhausted or on a non-retryable error.
func (p *Pipeline) MarkFailed(ctx context.Context, documentID uuid.UUID, attempts int, cause error, payload []byte) error {
	if err := p.store.AddDeadLetter(ctx, documentID, attempts, cause.Error(), payload); err != nil {
		return err
	}
	if err := p.store.TransitionStatus(ctx, documentID, store.StatusFailed); err != nil {
		// The dead letter is already recorded; a stale status is
		// recoverable by re-ingestion.
		p.logger.Warn("failed to mark document failed",
			"document_id", documentID,
			"error", err)
	}
	return nil
}

// MarkRetrying moves the document to failed status while a retry waits
// for its backoff delay. The next attempt re-enters chunking from
// there, so readers polling the document see failed rather than a
// stale mid-pipeline status.
func (p *Pipeline) MarkRetrying(ctx context.Context, documentID uuid.UUID) {
	if err := p.store.TransitionStatus(ctx, documentID, store.StatusFailed); err != nil {
		p.logger.Warn("failed to mark document for retry",
			"document_id", documentID,
			"error", err)
	}
}

func (p *Pipeline) transition(ctx context.Context, doc *store.Document, to store.DocumentStatus) error {
	if doc.Status == to {
		return nil
	}
	if err := p.store.TransitionStatus(ctx, doc.ID, to); err != nil {
		return err
	}
	doc.Status = to
	return nil
}
