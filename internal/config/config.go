// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ragline/config.yaml or ./config.yaml)
//  3. Default values
//
// Categories:
//   - Retrieval: vector top-K, graph hop count, merge weights, per-source timeout
//   - Embedding: model, dimension, batch size
//   - Backends: PostgreSQL, Redis, Qdrant, Neo4j, OpenAI-compatible endpoint
//   - Ingestion: chunk window/overlap, worker count, retry backoff, visibility timeout
//
// Sensitive values (passwords, API keys) are never logged; String() masks them.
// Validation returns sentinel errors checkable with errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbeddingDim indicates the embedding dimension is out of range.
	ErrInvalidEmbeddingDim = errors.New("invalid embedding dimension")

	// ErrInvalidTopK indicates the vector search top-K is out of range.
	ErrInvalidTopK = errors.New("invalid vector top-k")

	// ErrInvalidHopCount indicates the graph traversal hop count is out of range.
	ErrInvalidHopCount = errors.New("invalid graph hop count")

	// ErrInvalidMergeWeights indicates the merge weights are not positive.
	ErrInvalidMergeWeights = errors.New("invalid merge weights")

	// ErrInvalidTimeout indicates a timeout value is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidTokenBudget indicates the default token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrInvalidChunking indicates the chunk window/overlap combination is invalid.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidRetryPolicy indicates the retry backoff parameters are invalid.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")

	// ErrInvalidWorkerCount indicates the ingestion worker count is out of range.
	ErrInvalidWorkerCount = errors.New("invalid worker count")

	// ErrInvalidPostgres indicates the PostgreSQL connection settings are invalid.
	ErrInvalidPostgres = errors.New("invalid postgres configuration")

	// ErrInvalidRedis indicates the Redis connection settings are invalid.
	ErrInvalidRedis = errors.New("invalid redis configuration")

	// ErrInvalidQdrant indicates the Qdrant connection settings are invalid.
	ErrInvalidQdrant = errors.New("invalid qdrant configuration")

	// ErrInvalidNeo4j indicates the Neo4j connection settings are invalid.
	ErrInvalidNeo4j = errors.New("invalid neo4j configuration")
)

// Retrieval defaults. See assembler package for how they are applied.
const (
	DefaultVectorTopK    = 20
	DefaultGraphMaxHops  = 2
	DefaultVectorWeight  = 0.7
	DefaultGraphWeight   = 0.3
	DefaultSourceTimeout = 2 * time.Second
	DefaultTokenBudget   = 2048
	DefaultCacheTTL      = 60 * time.Second
)

// Ingestion defaults.
const (
	DefaultChunkWindow       = 500
	DefaultChunkOverlap      = 50
	DefaultWorkerCount       = 4
	DefaultRetryBaseDelay    = time.Second
	DefaultRetryFactor       = 2.0
	DefaultMaxAttempts       = 5
	DefaultVisibilityTimeout = 30 * time.Second
)

// Config stores application configuration.
// Sensitive fields are masked in MarshalJSON; update it when adding secrets.
type Config struct {
	// Retrieval configuration
	VectorTopK    int           `mapstructure:"vector_top_k" json:"vector_top_k"`
	GraphMaxHops  int           `mapstructure:"graph_max_hops" json:"graph_max_hops"`
	VectorWeight  float64       `mapstructure:"vector_weight" json:"vector_weight"`
	GraphWeight   float64       `mapstructure:"graph_weight" json:"graph_weight"`
	SourceTimeout time.Duration `mapstructure:"source_timeout" json:"source_timeout"`
	TokenBudget   int           `mapstructure:"token_budget" json:"token_budget"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`

	// Embedding configuration
	EmbedModel   string `mapstructure:"embed_model" json:"embed_model"`
	EmbeddingDim int    `mapstructure:"embedding_dim" json:"embedding_dim"`
	EmbedBatch   int    `mapstructure:"embed_batch" json:"embed_batch"`

	// Generation configuration
	ChatModel string `mapstructure:"chat_model" json:"chat_model"`

	// OpenAI-compatible endpoint. API key comes from OPENAI_API_KEY.
	OpenAIBaseURL string `mapstructure:"openai_base_url" json:"openai_base_url"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON

	// Ingestion configuration
	ChunkWindow       int           `mapstructure:"chunk_window" json:"chunk_window"`
	ChunkOverlap      int           `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	WorkerCount       int           `mapstructure:"worker_count" json:"worker_count"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay" json:"retry_base_delay"`
	RetryFactor       float64       `mapstructure:"retry_factor" json:"retry_factor"`
	MaxAttempts       int           `mapstructure:"max_attempts" json:"max_attempts"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" json:"visibility_timeout"`

	// PostgreSQL (relational store)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Redis (cache layer + queue broker)
	RedisAddr     string `mapstructure:"redis_addr" json:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" json:"redis_password"` // SENSITIVE: masked in MarshalJSON
	RedisDB       int    `mapstructure:"redis_db" json:"redis_db"`

	// Qdrant (vector index)
	QdrantHost       string `mapstructure:"qdrant_host" json:"qdrant_host"`
	QdrantPort       int    `mapstructure:"qdrant_port" json:"qdrant_port"`
	QdrantCollection string `mapstructure:"qdrant_collection" json:"qdrant_collection"`

	// Neo4j (graph store)
	Neo4jURI      string `mapstructure:"neo4j_uri" json:"neo4j_uri"`
	Neo4jUser     string `mapstructure:"neo4j_user" json:"neo4j_user"`
	Neo4jPassword string `mapstructure:"neo4j_password" json:"neo4j_password"` // SENSITIVE: masked in MarshalJSON
	Neo4jDatabase string `mapstructure:"neo4j_database" json:"neo4j_database"`

	// HTTP server
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ragline"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Retrieval defaults
	v.SetDefault("vector_top_k", DefaultVectorTopK)
	v.SetDefault("graph_max_hops", DefaultGraphMaxHops)
	v.SetDefault("vector_weight", DefaultVectorWeight)
	v.SetDefault("graph_weight", DefaultGraphWeight)
	v.SetDefault("source_timeout", DefaultSourceTimeout)
	v.SetDefault("token_budget", DefaultTokenBudget)
	v.SetDefault("cache_ttl", DefaultCacheTTL)

	// Embedding defaults (text-embedding-3-small)
	v.SetDefault("embed_model", "text-embedding-3-small")
	v.SetDefault("embedding_dim", 1536)
	v.SetDefault("embed_batch", 100)

	// Generation defaults
	v.SetDefault("chat_model", "gpt-4o-mini")
	v.SetDefault("openai_base_url", "")

	// Ingestion defaults
	v.SetDefault("chunk_window", DefaultChunkWindow)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)
	v.SetDefault("worker_count", DefaultWorkerCount)
	v.SetDefault("retry_base_delay", DefaultRetryBaseDelay)
	v.SetDefault("retry_factor", DefaultRetryFactor)
	v.SetDefault("max_attempts", DefaultMaxAttempts)
	v.SetDefault("visibility_timeout", DefaultVisibilityTimeout)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragline")
	v.SetDefault("postgres_password", "ragline_dev_password")
	v.SetDefault("postgres_db_name", "ragline")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_db", 0)

	// Qdrant defaults
	v.SetDefault("qdrant_host", "localhost")
	v.SetDefault("qdrant_port", 6334)
	v.SetDefault("qdrant_collection", "chunks")

	// Neo4j defaults
	v.SetDefault("neo4j_uri", "bolt://localhost:7687")
	v.SetDefault("neo4j_user", "neo4j")
	v.SetDefault("neo4j_database", "neo4j")

	// Server defaults
	v.SetDefault("server_addr", "127.0.0.1:8080")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded strings cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("openai_base_url", "OPENAI_BASE_URL")
	mustBind("postgres_password", "RAGLINE_POSTGRES_PASSWORD")
	mustBind("redis_addr", "RAGLINE_REDIS_ADDR")
	mustBind("redis_password", "RAGLINE_REDIS_PASSWORD")
	mustBind("qdrant_host", "RAGLINE_QDRANT_HOST")
	mustBind("neo4j_uri", "RAGLINE_NEO4J_URI")
	mustBind("neo4j_password", "RAGLINE_NEO4J_PASSWORD")
	mustBind("server_addr", "RAGLINE_SERVER_ADDR")
	mustBind("worker_count", "RAGLINE_WORKER_COUNT")
}

// PostgresURL returns the connection URL for pgx and golang-migrate.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort,
		c.PostgresDBName, c.PostgresSSLMode)
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked; longer ones keep the first and last two characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.RedisPassword = maskSecret(a.RedisPassword)
	a.Neo4jPassword = maskSecret(a.Neo4jPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
