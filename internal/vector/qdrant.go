package vector

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"

	"github.com/ragline/ragline/internal/ragerr"
)

// upsertBatchSize bounds points per Upsert RPC.
const upsertBatchSize = 100

// opTimeout is the default per-call timeout applied when the caller's
// context carries no deadline. The assembler passes tighter deadlines.
const opTimeout = 5 * time.Second

// Qdrant implements Index over a Qdrant gRPC endpoint.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	dimension  int
	logger     *slog.Logger
}

// NewQdrant connects to Qdrant and ensures the collection exists with the
// given vector dimension. Fails fast if the server is unreachable after a
// short retry window.
func NewQdrant(host string, port int, collection string, dimension int, logger *slog.Logger) (*Qdrant, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}

	ctx := context.Background()
	if err := q.healthCheckWithRetry(ctx); err != nil {
		_ = client.Close()
		return nil, ragerr.Transient("qdrant health check", err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return q, nil
}

// healthCheckWithRetry pings Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		result, err := q.client.HealthCheck(ctx)
		if err != nil {
			return err
		}
		if result == nil || result.Title == "" {
			return fmt.Errorf("invalid health check response")
		}
		return nil
	}, backoff.WithContext(b, ctx))
}

// ensureCollection creates the collection if missing. Idempotent.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return ragerr.Transient("listing collections", err)
	}
	for _, name := range collections {
		if name == q.collection {
			return nil
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return ragerr.Transient("creating collection", err)
	}

	// Payload indexes keep filtered searches fast.
	for _, field := range []string{"document_id"} {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return ragerr.Transient(fmt.Sprintf("creating index for %s", field), err)
		}
	}

	q.logger.Info("created qdrant collection", "collection", q.collection, "dimension", q.dimension)
	return nil
}

// withDeadline applies opTimeout when the context has no deadline yet.
func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

// Upsert inserts or replaces points, batching RPCs.
func (q *Qdrant) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	for i, p := range points {
		if len(p.Vector) != q.dimension {
			return ragerr.Integrity("point %d: dimension mismatch: got %d, want %d",
				i, len(p.Vector), q.dimension)
		}
	}

	ctx, cancel := withDeadline(ctx)
	defer cancel()

	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))
		batch := points[i:end]

		structs := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			payload := map[string]any{
				"document_id": p.DocumentID,
				"ordinal":     p.Ordinal,
				"text":        p.Text,
			}
			for k, v := range p.Metadata {
				payload["meta_"+k] = v
			}
			structs[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(p.ChunkID),
				Vectors: qdrant.NewVectors(p.Vector...),
				Payload: qdrant.NewValueMap(payload),
			}
		}

		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         structs,
		})
		if err != nil {
			return ragerr.Transient(fmt.Sprintf("upserting batch %d-%d", i, end), err)
		}
	}

	return nil
}

// Search returns up to topK matches by descending cosine similarity.
func (q *Qdrant) Search(ctx context.Context, queryVector []float32, topK int, filters map[string]string) ([]Match, error) {
	if len(queryVector) != q.dimension {
		return nil, ragerr.Integrity("query dimension mismatch: got %d, want %d",
			len(queryVector), q.dimension)
	}

	ctx, cancel := withDeadline(ctx)
	defer cancel()

	var filter *qdrant.Filter
	if len(filters) > 0 {
		must := make([]*qdrant.Condition, 0, len(filters))
		for k, v := range filters {
			must = append(must, qdrant.NewMatch("meta_"+k, v))
		}
		filter = &qdrant.Filter{Must: must}
	}

	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.Transient("vector search", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		payload := r.Payload
		matches = append(matches, Match{
			ChunkID:    r.Id.GetUuid(),
			DocumentID: payload["document_id"].GetStringValue(),
			Ordinal:    int(payload["ordinal"].GetIntegerValue()),
			Text:       payload["text"].GetStringValue(),
			Score:      r.Score,
		})
	}

	return matches, nil
}

// Delete removes points by chunk ID.
func (q *Qdrant) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	ctx, cancel := withDeadline(ctx)
	defer cancel()

	ids := make([]*qdrant.PointId, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = qdrant.NewIDUUID(id)
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	if err != nil {
		return ragerr.Transient("deleting points", err)
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
