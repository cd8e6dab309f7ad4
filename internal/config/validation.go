package config

import (
	"fmt"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Retrieval configuration
	if c.VectorTopK < 1 || c.VectorTopK > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d", ErrInvalidTopK, c.VectorTopK)
	}
	if c.GraphMaxHops < 1 || c.GraphMaxHops > 5 {
		return fmt.Errorf("%w: must be between 1 and 5, got %d", ErrInvalidHopCount, c.GraphMaxHops)
	}
	if c.VectorWeight <= 0 || c.GraphWeight < 0 {
		return fmt.Errorf("%w: vector=%.2f graph=%.2f", ErrInvalidMergeWeights, c.VectorWeight, c.GraphWeight)
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("%w: source_timeout must be positive, got %v", ErrInvalidTimeout, c.SourceTimeout)
	}
	if c.TokenBudget < 1 || c.TokenBudget > 1_000_000 {
		return fmt.Errorf("%w: must be between 1 and 1,000,000, got %d", ErrInvalidTokenBudget, c.TokenBudget)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive, got %v", ErrInvalidTimeout, c.CacheTTL)
	}

	// Embedding configuration
	if c.EmbeddingDim < 1 || c.EmbeddingDim > 8192 {
		return fmt.Errorf("%w: must be between 1 and 8192, got %d", ErrInvalidEmbeddingDim, c.EmbeddingDim)
	}

	// Ingestion configuration
	if c.ChunkWindow < 1 {
		return fmt.Errorf("%w: chunk_window must be positive, got %d", ErrInvalidChunking, c.ChunkWindow)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWindow {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_window), got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.WorkerCount < 1 || c.WorkerCount > 256 {
		return fmt.Errorf("%w: must be between 1 and 256, got %d", ErrInvalidWorkerCount, c.WorkerCount)
	}
	if c.RetryBaseDelay <= 0 || c.RetryFactor < 1 || c.MaxAttempts < 1 {
		return fmt.Errorf("%w: base=%v factor=%.1f attempts=%d",
			ErrInvalidRetryPolicy, c.RetryBaseDelay, c.RetryFactor, c.MaxAttempts)
	}
	if c.VisibilityTimeout <= 0 {
		return fmt.Errorf("%w: visibility_timeout must be positive, got %v", ErrInvalidTimeout, c.VisibilityTimeout)
	}

	// PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
	}
	switch c.PostgresSSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("%w: unknown ssl mode %q", ErrInvalidPostgres, c.PostgresSSLMode)
	}

	// Redis configuration
	if c.RedisAddr == "" || !strings.Contains(c.RedisAddr, ":") {
		return fmt.Errorf("%w: addr must be host:port, got %q", ErrInvalidRedis, c.RedisAddr)
	}

	// Qdrant configuration
	if c.QdrantHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidQdrant)
	}
	if c.QdrantPort < 1 || c.QdrantPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidQdrant, c.QdrantPort)
	}
	if c.QdrantCollection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidQdrant)
	}

	// Neo4j configuration
	if c.Neo4jURI == "" {
		return fmt.Errorf("%w: uri cannot be empty", ErrInvalidNeo4j)
	}

	return nil
}

// ValidateServe performs the additional checks required by serve/worker modes,
// which talk to the embedding and generation backends.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
	}
	return nil
}
