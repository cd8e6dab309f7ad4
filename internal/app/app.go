// Package app wires configuration into the running component graph:
// store clients, the embedding gateway, the context assembler, the
// generation adapter and the ingestion pipeline.
package app

import (
	"context"
	"log/slog"

	"github.com/ragline/ragline/internal/assembler"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/embedding"
	"github.com/ragline/ragline/internal/generation"
	"github.com/ragline/ragline/internal/graph"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/queue"
	"github.com/ragline/ragline/internal/store"
	"github.com/ragline/ragline/internal/vector"
)

// App is the application container. Fields are populated by Setup and
// released by Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Store   *store.Store
	Cache   *cache.Cache
	Broker  *queue.RedisBroker
	Vectors *vector.Qdrant
	Graph   *graph.Neo4j

	Gateway   *embedding.Gateway
	Assembler *assembler.Assembler
	Generator generation.Generator
	Pipeline  *ingest.Pipeline
}

// Close releases all backend connections in reverse order of setup.
// Safe to call on a partially initialized App.
func (a *App) Close(ctx context.Context) {
	if a.Graph != nil {
		if err := a.Graph.Close(ctx); err != nil {
			a.Logger.Warn("closing neo4j", "error", err)
		}
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			a.Logger.Warn("closing qdrant", "error", err)
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("closing redis", "error", err)
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
	a.Logger.Info("application shut down")
}
