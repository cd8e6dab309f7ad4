package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragline/ragline/internal/assembler"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/embedding"
	"github.com/ragline/ragline/internal/entity"
	"github.com/ragline/ragline/internal/generation"
	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/queue"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

// Setup connects every backend and assembles the component graph.
// On failure, everything already initialized is released before the
// error is returned.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close(ctx)
		}
	}()

	st, err := store.Connect(ctx, cfg.PostgresURL(), logger)
	if err != nil {
		return nil, fmt.Errorf("connecting postgres: %w", err)
	}
	a.Store = st

	ca, err := cache.New(cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting redis: %w", err)
	}
	a.Cache = ca
	a.Broker = queue.NewRedisBroker(ca.Client(), cfg.VisibilityTimeout, logger)

	vec, err := vector.NewQdrant(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, cfg.EmbeddingDim, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting qdrant: %w", err)
	}
	a.Vectors = vec

	gr, err := graph.NewNeo4j(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, cfg.Neo4jDatabase, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting neo4j: %w", err)
	}
	a.Graph = gr

	embedder, err := embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbedModel, cfg.EmbeddingDim, cfg.EmbedBatch)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	a.Gateway = embedding.NewGateway(embedder, 0, logger)

	gen, err := generation.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel)
	if err != nil {
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	a.Generator = gen

	extractor := entity.KeywordExtractor{}

	a.Assembler = assembler.New(a.Vectors, a.Graph, a.Gateway, extractor, a.Cache, assembler.Config{
		VectorTopK:    cfg.VectorTopK,
		GraphMaxHops:  cfg.GraphMaxHops,
		VectorWeight:  cfg.VectorWeight,
		GraphWeight:   cfg.GraphWeight,
		SourceTimeout: cfg.SourceTimeout,
		DefaultBudget: cfg.TokenBudget,
		CacheTTL:      cfg.CacheTTL,
	}, logger)

	a.Pipeline = ingest.NewPipeline(a.Store, a.Gateway, a.Vectors, a.Graph, extractor, ingest.Config{
		ChunkWindow:  cfg.ChunkWindow,
		ChunkOverlap: cfg.ChunkOverlap,
	}, logger)

	logger.Info("application initialized",
		"vector_top_k", cfg.VectorTopK,
		"graph_max_hops", cfg.GraphMaxHops,
		"token_budget", cfg.TokenBudget)
	return a, nil
}

// NewWorker builds the ingestion worker over the app's pipeline and broker.
func (a *App) NewWorker() (*ingest.Worker, error) {
	return ingest.NewWorker(a.Broker, a.Pipeline, ingest.WorkerConfig{
		Count:          a.Config.WorkerCount,
		RetryBaseDelay: a.Config.RetryBaseDelay,
		RetryFactor:    a.Config.RetryFactor,
		MaxAttempts:    a.Config.MaxAttempts,
	}, a.Logger)
}
