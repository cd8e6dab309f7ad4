package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/ragline/ragline/internal/ragerr"
)

// DefaultBatchSize balances requests-per-minute against tokens-per-minute
// limits. The API supports up to 2048 texts per request.
const DefaultBatchSize = 100

// requestsPerSecond bounds outbound embedding calls so bulk ingestion
// cannot starve request-serving traffic of API quota.
const requestsPerSecond = 10

// OpenAIEmbedder generates embeddings via an OpenAI-compatible endpoint.
// Rate-limit responses are retried with exponential backoff; other API
// errors fail immediately.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
	limiter   *rate.Limiter
}

// NewOpenAIEmbedder creates an embedder for the given model and dimension.
// baseURL may be empty to use the default endpoint. batchSize <= 0 selects
// DefaultBatchSize.
func NewOpenAIEmbedder(apiKey, baseURL, model string, dimension, batchSize int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: api key required")
	}
	if dimension < 1 {
		return nil, fmt.Errorf("embedding: invalid dimension %d", dimension)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIEmbedder{
		client:    openai.NewClient(opts...),
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
	}, nil
}

// Dimension returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed generates embeddings for texts, batching requests.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

// embedBatch embeds a single batch with rate limiting and retry.
func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, ragerr.Transient("embedding rate wait", err)
	}

	var vectors [][]float32

	operation := func() error {
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: openai.Int(int64(e.dimension)),
		})
		if err != nil {
			if isRateLimitError(err) {
				return err // retry with backoff
			}
			return backoff.Permanent(err)
		}

		if len(resp.Data) != len(texts) {
			return backoff.Permanent(ragerr.Integrity(
				"embedding response count mismatch: got %d, want %d", len(resp.Data), len(texts)))
		}

		vectors = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			v := toFloat32(data.Embedding)
			if len(v) != e.dimension {
				return backoff.Permanent(ragerr.Integrity(
					"embedding dimension mismatch: got %d, want %d", len(v), e.dimension))
			}
			vectors[i] = v
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ragerr.ErrDataIntegrity) {
			return nil, err
		}
		return nil, ragerr.Transient("embedding request", err)
	}
	return vectors, nil
}

// isRateLimitError checks for an HTTP 429 response.
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts the API's float64 vectors to float32 for storage.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
