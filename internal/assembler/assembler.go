package assembler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/vector"
)

// VectorSearcher is the slice of the vector index the assembler uses.
type VectorSearcher interface {
	Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]vector.Match, error)
}

// GraphTraverser is the slice of the graph store the assembler uses.
type GraphTraverser interface {
	Traverse(ctx context.Context, seeds []string, maxHops int) ([]graph.Fact, error)
}

// Embedder turns the query into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Extractor supplies graph seed entities from query text.
type Extractor interface {
	Extract(text string) []string
}

// ContextCache is the read-through cache in front of retrieval.
type ContextCache interface {
	GetStruct(ctx context.Context, key string, target any) (bool, error)
	SetStruct(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config holds the tunable assembly parameters. Zero values are
// replaced with the defaults below in New.
type Config struct {
	VectorTopK    int
	GraphMaxHops  int
	VectorWeight  float64
	GraphWeight   float64
	SourceTimeout time.Duration
	DefaultBudget int
	CacheTTL      time.Duration
}

const (
	defaultVectorTopK    = 20
	defaultGraphMaxHops  = 2
	defaultVectorWeight  = 0.7
	defaultGraphWeight   = 0.3
	defaultSourceTimeout = 2 * time.Second
	defaultBudget        = 2048
	defaultCacheTTL      = 60 * time.Second
)

// Assembler orchestrates cache lookup, concurrent retrieval, merging
// and budget enforcement for a single query.
type Assembler struct {
	vectors   VectorSearcher
	graphs    GraphTraverser
	embedder  Embedder
	extractor Extractor
	cache     ContextCache
	cfg       Config
	logger    *slog.Logger

	// flight collapses concurrent assemblies of the same cache key
	// into a single retrieval fan-out.
	flight singleflight.Group
}

// New builds an Assembler. cache may be nil to disable caching.
func New(vectors VectorSearcher, graphs GraphTraverser, embedder Embedder, extractor Extractor, cache ContextCache, cfg Config, logger *slog.Logger) *Assembler {
	if cfg.VectorTopK <= 0 {
		cfg.VectorTopK = defaultVectorTopK
	}
	if cfg.GraphMaxHops <= 0 {
		cfg.GraphMaxHops = defaultGraphMaxHops
	}
	if cfg.VectorWeight <= 0 {
		cfg.VectorWeight = defaultVectorWeight
	}
	if cfg.GraphWeight <= 0 {
		cfg.GraphWeight = defaultGraphWeight
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	if cfg.DefaultBudget <= 0 {
		cfg.DefaultBudget = defaultBudget
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		vectors:   vectors,
		graphs:    graphs,
		embedder:  embedder,
		extractor: extractor,
		cache:     cache,
		cfg:       cfg,
		logger:    logger,
	}
}

// sourceResult is what one retrieval goroutine hands back.
type sourceResult struct {
	candidates []rawCandidate
	latency    time.Duration
	err        error
}

// Assemble produces the ranked context for query under budget. A
// non-positive budget falls back to the configured default. filters
// restricts vector matches by chunk metadata.
//
// One failed retrieval source degrades the result; both failing yields
// ErrRetrievalUnavailable and nothing is cached. Concurrent calls for
// the same (query, filters, budget) share a single retrieval fan-out.
func (a *Assembler) Assemble(ctx context.Context, query string, budget int, filters map[string]string) (*AssembledContext, error) {
	if budget <= 0 {
		budget = a.cfg.DefaultBudget
	}

	key := cacheKey(query, filters)
	if a.cache != nil {
		var cached AssembledContext
		found, err := a.cache.GetStruct(ctx, key, &cached)
		if err != nil {
			a.logger.Warn("context cache lookup failed", "error", err)
		}
		if found {
			cached.FromCache = true
			return &cached, nil
		}
	}

	// The fan-out runs detached from any single caller, so a leader
	// disconnect cannot fail followers whose contexts are still live.
	// Per-source timeouts still bound the detached work.
	flightKey := fmt.Sprintf("%s|%d", key, budget)
	ch := a.flight.DoChan(flightKey, func() (any, error) {
		return a.assemble(context.WithoutCancel(ctx), query, budget, filters, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if res.Err != nil {
			return nil, res.Err
		}
		result := res.Val.(*AssembledContext)
		if res.Shared {
			// Followers get a copy so flag mutations cannot leak.
			copied := *result
			return &copied, nil
		}
		return result, nil
	}
}

// assemble performs the retrieval fan-out, merge, budget enforcement
// and cache write-back for one query.
func (a *Assembler) assemble(ctx context.Context, query string, budget int, filters map[string]string, key string) (*AssembledContext, error) {
	vectorCh := make(chan sourceResult, 1)
	graphCh := make(chan sourceResult, 1)
	go func() { vectorCh <- a.searchVectors(ctx, query, filters) }()
	go func() { graphCh <- a.traverseGraph(ctx, query) }()
	vres, gres := <-vectorCh, <-graphCh

	if vres.err != nil && gres.err != nil {
		return nil, fmt.Errorf("%w: vector: %v; graph: %v", ragerr.ErrRetrievalUnavailable, vres.err, gres.err)
	}

	degraded := false
	if vres.err != nil {
		a.logger.Warn("vector retrieval failed, continuing degraded", "error", vres.err)
		degraded = true
	}
	if gres.err != nil {
		a.logger.Warn("graph retrieval failed, continuing degraded", "error", gres.err)
		degraded = true
	}

	sorted := merge(vres.candidates, gres.candidates, a.cfg.VectorWeight, a.cfg.GraphWeight)
	kept, total, truncated := applyBudget(sorted, budget)

	result := &AssembledContext{
		Candidates: kept,
		TokenCount: total,
		Truncated:  truncated,
		Degraded:   degraded,
	}

	// Degraded results are not cached so a recovered source takes
	// effect on the next request instead of after TTL expiry.
	if a.cache != nil && !degraded {
		if err := a.cache.SetStruct(ctx, key, result, a.cfg.CacheTTL); err != nil {
			a.logger.Warn("context cache write failed", "error", err)
		}
	}
	return result, nil
}

func (a *Assembler) searchVectors(ctx context.Context, query string, filters map[string]string) sourceResult {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	vectors, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return sourceResult{err: fmt.Errorf("embedding query: %w", err)}
	}
	matches, err := a.vectors.Search(ctx, vectors[0], a.cfg.VectorTopK, filters)
	if err != nil {
		return sourceResult{err: err}
	}
	latency := time.Since(start)

	candidates := make([]rawCandidate, len(matches))
	for i, m := range matches {
		candidates[i] = rawCandidate{
			RetrievalCandidate: RetrievalCandidate{
				ChunkID:    m.ChunkID,
				DocumentID: m.DocumentID,
				Text:       m.Text,
				Source:     SourceVector,
				Latency:    latency,
			},
			raw:  float64(m.Score),
			rank: i,
		}
	}
	return sourceResult{candidates: candidates, latency: latency}
}

func (a *Assembler) traverseGraph(ctx context.Context, query string) sourceResult {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.SourceTimeout)
	defer cancel()

	start := time.Now()
	seeds := a.extractor.Extract(query)
	if len(seeds) == 0 {
		return sourceResult{latency: time.Since(start)}
	}
	facts, err := a.graphs.Traverse(ctx, seeds, a.cfg.GraphMaxHops)
	if err != nil {
		return sourceResult{err: err}
	}
	latency := time.Since(start)

	candidates := make([]rawCandidate, len(facts))
	for i, f := range facts {
		id := f.ChunkID
		if id == "" {
			id = "fact:" + f.Statement()
		}
		candidates[i] = rawCandidate{
			RetrievalCandidate: RetrievalCandidate{
				ChunkID:    id,
				DocumentID: f.DocumentID,
				Text:       f.Statement(),
				Source:     SourceGraph,
				Latency:    latency,
			},
			// Closer facts score higher before min-max rescaling.
			raw:  1.0 / float64(1+f.Distance),
			rank: i,
		}
	}
	return sourceResult{candidates: candidates, latency: latency}
}

// cacheKey hashes the whitespace-normalized, lowercased query together
// with the sorted filter pairs.
func cacheKey(query string, filters map[string]string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	h.Write([]byte(norm))
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(filters[k]))
	}
	return "ragline:ctx:" + hex.EncodeToString(h.Sum(nil))
}
