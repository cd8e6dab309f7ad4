package assembler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragline/ragline/internal/entity"
	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/vector"
)

type mockVectors struct {
	matches []vector.Match
	err     error
	calls   int
}

func (m *mockVectors) Search(_ context.Context, _ []float32, _ int, _ map[string]string) ([]vector.Match, error) {
	m.calls++
	return m.matches, m.err
}

type mockGraph struct {
	facts []graph.Fact
	err   error
	calls int
}

func (m *mockGraph) Traverse(_ context.Context, _ []string, _ int) ([]graph.Fact, error) {
	m.calls++
	return m.facts, m.err
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type mockCache struct {
	entries  map[string]*AssembledContext
	getErr   error
	setCalls int
}

func newMockCache() *mockCache {
	return &mockCache{entries: make(map[string]*AssembledContext)}
}

func (m *mockCache) GetStruct(_ context.Context, key string, target any) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	cached, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	*target.(*AssembledContext) = *cached
	return true, nil
}

func (m *mockCache) SetStruct(_ context.Context, key string, value any, _ time.Duration) error {
	m.setCalls++
	ctx := *value.(*AssembledContext)
	m.entries[key] = &ctx
	return nil
}

func newAssembler(v *mockVectors, g *mockGraph, c *mockCache) *Assembler {
	var cache ContextCache
	if c != nil {
		cache = c
	}
	return New(v, g, &mockEmbedder{}, entity.KeywordExtractor{}, cache, Config{}, log.NewNop())
}

func TestAssembleWeightedMergeOrder(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{
		{ChunkID: "A", Text: "chunk a", Score: 0.9},
		{ChunkID: "B", Text: "chunk b", Score: 0.6},
	}}
	graphs := &mockGraph{facts: []graph.Fact{
		{Subject: "chlorophyll", Relation: "absorbs", Object: "light", ChunkID: "C", Distance: 1},
	}}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "what is photosynthesis", 2048, nil)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "A", result.Candidates[0].ChunkID)
	assert.Equal(t, "C", result.Candidates[1].ChunkID)
	assert.Equal(t, "B", result.Candidates[2].ChunkID)

	assert.InDelta(t, 0.7, result.Candidates[0].Score, 1e-9)
	assert.InDelta(t, 0.3, result.Candidates[1].Score, 1e-9)
	assert.InDelta(t, 0.0, result.Candidates[2].Score, 1e-9)

	assert.False(t, result.Degraded)
	assert.False(t, result.Truncated)
	assert.False(t, result.FromCache)
}

func TestAssembleTieBreakVectorBeforeGraph(t *testing.T) {
	// Equal raw scores normalize to 1 within each source, so the
	// graph fact lands at 0.3 and both vector chunks at 0.7; within
	// the vector pair original order must hold.
	vectors := &mockVectors{matches: []vector.Match{
		{ChunkID: "v1", Text: "first", Score: 0.5},
		{ChunkID: "v2", Text: "second", Score: 0.5},
	}}
	graphs := &mockGraph{facts: []graph.Fact{
		{Subject: "s", Relation: "r", Object: "o", ChunkID: "g1", Distance: 1},
	}}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "Ordering query", 2048, nil)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "v1", result.Candidates[0].ChunkID)
	assert.Equal(t, "v2", result.Candidates[1].ChunkID)
	assert.Equal(t, "g1", result.Candidates[2].ChunkID)
}

func TestAssembleDeduplicatesKeepingHigherScore(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{
		{ChunkID: "dup", Text: "vector copy", Score: 0.9},
		{ChunkID: "other", Text: "other", Score: 0.2},
	}}
	graphs := &mockGraph{facts: []graph.Fact{
		{Subject: "s", Relation: "r", Object: "o", ChunkID: "dup", Distance: 1},
	}}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "dedup query", 2048, nil)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "dup", result.Candidates[0].ChunkID)
	assert.Equal(t, SourceVector, result.Candidates[0].Source)
	assert.Equal(t, "vector copy", result.Candidates[0].Text)
}

func TestAssembleBudgetTruncation(t *testing.T) {
	// 40 chars estimate to 10 tokens each; budget 25 fits two.
	text := strings.Repeat("x", 40)
	vectors := &mockVectors{matches: []vector.Match{
		{ChunkID: "a", Text: text, Score: 0.9},
		{ChunkID: "b", Text: text, Score: 0.8},
		{ChunkID: "c", Text: text, Score: 0.7},
	}}
	graphs := &mockGraph{}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "budget query", 25, nil)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 20, result.TokenCount)
	assert.True(t, result.Truncated)
}

func TestAssembleOversizedTopCandidateCutToFit(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{
		{ChunkID: "huge", Text: strings.Repeat("y", 400), Score: 0.9},
	}}
	graphs := &mockGraph{}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "oversized query", 10, nil)
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	assert.LessOrEqual(t, result.TokenCount, 10)
	assert.Len(t, result.Candidates[0].Text, 40)
	assert.True(t, result.Truncated)
}

func TestAssembleDegradedOnSingleSourceFailure(t *testing.T) {
	tests := []struct {
		name    string
		vectors *mockVectors
		graphs  *mockGraph
		wantID  string
	}{
		{
			name:    "graph down",
			vectors: &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}},
			graphs:  &mockGraph{err: ragerr.Transient("traverse", errors.New("connection refused"))},
			wantID:  "v1",
		},
		{
			name:    "vector down",
			vectors: &mockVectors{err: ragerr.Transient("search", errors.New("deadline exceeded"))},
			graphs:  &mockGraph{facts: []graph.Fact{{Subject: "s", Relation: "r", Object: "o", ChunkID: "g1"}}},
			wantID:  "g1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newAssembler(tt.vectors, tt.graphs, nil).Assemble(context.Background(), "degraded query", 2048, nil)
			require.NoError(t, err)
			assert.True(t, result.Degraded)
			require.Len(t, result.Candidates, 1)
			assert.Equal(t, tt.wantID, result.Candidates[0].ChunkID)
		})
	}
}

func TestAssembleBothSourcesFailed(t *testing.T) {
	vectors := &mockVectors{err: errors.New("vector down")}
	graphs := &mockGraph{err: errors.New("graph down")}
	cache := newMockCache()

	_, err := newAssembler(vectors, graphs, cache).Assemble(context.Background(), "doomed query", 2048, nil)
	require.ErrorIs(t, err, ragerr.ErrRetrievalUnavailable)
	assert.Zero(t, cache.setCalls)
}

func TestAssembleCacheHitSkipsRetrieval(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "a", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{}
	cache := newMockCache()
	a := newAssembler(vectors, graphs, cache)

	first, err := a.Assemble(context.Background(), "cached query", 2048, nil)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, 1, cache.setCalls)

	second, err := a.Assemble(context.Background(), "cached query", 2048, nil)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Candidates, second.Candidates)
	assert.Equal(t, 1, vectors.calls)
}

func TestAssembleCacheKeyNormalization(t *testing.T) {
	assert.Equal(t, cacheKey("What  Is   Photosynthesis", nil), cacheKey("what is photosynthesis", nil))
	assert.Equal(t,
		cacheKey("q", map[string]string{"a": "1", "b": "2"}),
		cacheKey("q", map[string]string{"b": "2", "a": "1"}))
	assert.NotEqual(t, cacheKey("q", nil), cacheKey("q", map[string]string{"a": "1"}))
	assert.NotEqual(t, cacheKey("one query", nil), cacheKey("another query", nil))
}

func TestAssembleDegradedResultNotCached(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{err: errors.New("graph down")}
	cache := newMockCache()

	result, err := newAssembler(vectors, graphs, cache).Assemble(context.Background(), "degraded cache query", 2048, nil)
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Zero(t, cache.setCalls)
}

func TestAssembleCacheLookupErrorFallsThrough(t *testing.T) {
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{}
	cache := newMockCache()
	cache.getErr = errors.New("redis down")

	result, err := newAssembler(vectors, graphs, cache).Assemble(context.Background(), "fallthrough query", 2048, nil)
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
}

func TestAssembleNoGraphSeeds(t *testing.T) {
	// A query of pure stopwords yields no seeds; graph contributes
	// nothing but does not count as a failed source.
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{}

	result, err := newAssembler(vectors, graphs, nil).Assemble(context.Background(), "is it in", 2048, nil)
	require.NoError(t, err)
	assert.False(t, result.Degraded)
	assert.Zero(t, graphs.calls)
	assert.Len(t, result.Candidates, 1)
}

func TestAssembleCoalescesConcurrentIdenticalQueries(t *testing.T) {
	release := make(chan struct{})
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{}
	a := New(vectors, graphs, &blockingEmbedder{release: release}, entity.KeywordExtractor{}, nil, Config{}, log.NewNop())

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*AssembledContext, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := a.Assemble(context.Background(), "shared query", 2048, nil)
			require.NoError(t, err)
			results[i] = r
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, vectors.calls)
	for _, r := range results {
		require.Len(t, r.Candidates, 1)
	}
}

func TestAssembleFollowerSurvivesLeaderCancellation(t *testing.T) {
	release := make(chan struct{})
	vectors := &mockVectors{matches: []vector.Match{{ChunkID: "v1", Text: "text", Score: 0.9}}}
	graphs := &mockGraph{}
	a := New(vectors, graphs, &blockingEmbedder{release: release}, entity.KeywordExtractor{}, nil, Config{}, log.NewNop())

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := a.Assemble(leaderCtx, "shared query", 2048, nil)
		leaderErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	followerDone := make(chan struct{})
	var followerResult *AssembledContext
	var followerErr error
	go func() {
		followerResult, followerErr = a.Assemble(context.Background(), "shared query", 2048, nil)
		close(followerDone)
	}()
	time.Sleep(20 * time.Millisecond)

	// The leader leaves; its shared fan-out must keep going for the
	// follower.
	cancelLeader()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	<-followerDone
	require.NoError(t, followerErr)
	require.Len(t, followerResult.Candidates, 1)
	assert.Equal(t, "v1", followerResult.Candidates[0].ChunkID)
	assert.Equal(t, 1, vectors.calls)
}

type blockingEmbedder struct {
	release chan struct{}
}

func (b *blockingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func TestAssembleCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	vectors := &mockVectors{err: context.Canceled}
	graphs := &mockGraph{err: context.Canceled}

	_, err := newAssembler(vectors, graphs, nil).Assemble(ctx, "cancelled query", 2048, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ragerr.ErrRetrievalUnavailable)
}
