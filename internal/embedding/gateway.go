package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
)

// Gateway wraps an Embedder with a concurrent content-hash cache.
//
// Embedding is deterministic for identical content, so cache collisions
// on the same hash are harmless: last writer wins with an identical value.
// The cache lives for the process lifetime; entries are evicted FIFO once
// maxEntries is reached to bound memory.
type Gateway struct {
	backend Embedder
	logger  *slog.Logger

	mu         sync.RWMutex
	cache      map[string][]float32
	order      []string // insertion order for FIFO eviction
	maxEntries int
}

// DefaultCacheEntries bounds the content-hash cache.
// 1536-dim float32 vectors are ~6 KB each, so this caps at ~600 MB.
const DefaultCacheEntries = 100_000

// NewGateway creates a Gateway over backend.
// maxEntries <= 0 selects DefaultCacheEntries.
func NewGateway(backend Embedder, maxEntries int, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	return &Gateway{
		backend:    backend,
		logger:     logger,
		cache:      make(map[string][]float32),
		maxEntries: maxEntries,
	}
}

// Dimension returns the backend's embedding dimension.
func (g *Gateway) Dimension() int {
	return g.backend.Dimension()
}

// Embed returns one vector per text, serving cache hits locally and
// batching only the misses to the backend.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	keys := make([]string, len(texts))
	result := make([][]float32, len(texts))

	var missTexts []string
	var missIdx []int

	g.mu.RLock()
	for i, text := range texts {
		keys[i] = ContentHash(text)
		if v, ok := g.cache[keys[i]]; ok {
			result[i] = v
		} else {
			missTexts = append(missTexts, text)
			missIdx = append(missIdx, i)
		}
	}
	g.mu.RUnlock()

	if len(missTexts) == 0 {
		return result, nil
	}

	vectors, err := g.backend.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	for j, idx := range missIdx {
		result[idx] = vectors[j]
		key := keys[idx]
		if _, exists := g.cache[key]; !exists {
			g.cache[key] = vectors[j]
			g.order = append(g.order, key)
		}
	}
	for len(g.order) > g.maxEntries {
		oldest := g.order[0]
		g.order = g.order[1:]
		delete(g.cache, oldest)
	}
	g.mu.Unlock()

	g.logger.Debug("embedded texts",
		"total", len(texts),
		"cache_hits", len(texts)-len(missTexts),
		"cache_misses", len(missTexts))

	return result, nil
}

// CacheSize returns the current number of cached vectors.
func (g *Gateway) CacheSize() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.cache)
}

// ContentHash returns the cache key for a piece of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
