package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ragline/ragline/internal/ragerr"
)

// maxHopsLimit caps traversal depth. Variable-length bounds are spliced
// into the Cypher text (parameters are not allowed there), so the value
// is validated first.
const maxHopsLimit = 5

// opTimeout is the default per-call timeout applied when the caller's
// context carries no deadline.
const opTimeout = 5 * time.Second

// Neo4j implements Store over the Bolt protocol.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewNeo4j connects to Neo4j and verifies connectivity.
func NewNeo4j(uri, user, password, database string, logger *slog.Logger) (*Neo4j, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, ragerr.Transient("neo4j connectivity check", err)
	}

	return &Neo4j{
		driver:   driver,
		database: database,
		logger:   logger,
	}, nil
}

func withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, opTimeout)
}

// run executes a single Cypher statement.
func (n *Neo4j) run(ctx context.Context, query string, params map[string]any) (*neo4j.EagerResult, error) {
	ctx, cancel := withDeadline(ctx)
	defer cancel()

	result, err := neo4j.ExecuteQuery(ctx, n.driver, query, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpsertEntity inserts or updates an entity keyed by name.
func (n *Neo4j) UpsertEntity(ctx context.Context, e Entity) error {
	if e.Name == "" {
		return ragerr.Integrity("entity name cannot be empty")
	}

	_, err := n.run(ctx,
		`MERGE (e:Entity {name: $name}) SET e.kind = $kind`,
		map[string]any{"name": e.Name, "kind": e.Kind})
	if err != nil {
		return ragerr.Transient("upserting entity", err)
	}
	return nil
}

// UpsertRelationship inserts or updates an edge, creating missing endpoints.
func (n *Neo4j) UpsertRelationship(ctx context.Context, r Relationship) error {
	if r.From == "" || r.To == "" || r.Relation == "" {
		return ragerr.Integrity("relationship endpoints and relation cannot be empty")
	}

	_, err := n.run(ctx, `
		MERGE (a:Entity {name: $from})
		MERGE (b:Entity {name: $to})
		MERGE (a)-[r:RELATES {relation: $relation}]->(b)
		SET r.chunk_id = $chunk_id, r.document_id = $document_id`,
		map[string]any{
			"from":        r.From,
			"to":          r.To,
			"relation":    r.Relation,
			"chunk_id":    r.ChunkID,
			"document_id": r.DocumentID,
		})
	if err != nil {
		return ragerr.Transient("upserting relationship", err)
	}
	return nil
}

// Traverse returns facts within maxHops of the seed entities. Each fact
// is reported once at its minimal hop distance; deduplication happens
// here rather than in Cypher to keep the query simple.
func (n *Neo4j) Traverse(ctx context.Context, seeds []string, maxHops int) ([]Fact, error) {
	if len(seeds) == 0 {
		return nil, nil
	}
	if maxHops < 1 || maxHops > maxHopsLimit {
		return nil, ragerr.Integrity("max hops must be between 1 and %d, got %d", maxHopsLimit, maxHops)
	}

	// The hop bound cannot be parameterized in Cypher; it is validated above.
	query := fmt.Sprintf(`
		MATCH (seed:Entity) WHERE seed.name IN $seeds
		MATCH p = (seed)-[:RELATES*1..%d]-(:Entity)
		WITH relationships(p) AS rels, length(p) AS dist
		UNWIND range(0, size(rels)-1) AS i
		WITH rels[i] AS r, i + 1 AS hop
		RETURN startNode(r).name AS subject, r.relation AS relation,
		       endNode(r).name AS object, r.chunk_id AS chunk_id,
		       r.document_id AS document_id, min(hop) AS distance`, maxHops)

	result, err := n.run(ctx, query, map[string]any{"seeds": seeds})
	if err != nil {
		return nil, ragerr.Transient("graph traversal", err)
	}

	seen := make(map[string]int) // fact key -> index into facts
	var facts []Fact

	for _, record := range result.Records {
		fact := Fact{
			Subject:    stringValue(record, "subject"),
			Relation:   stringValue(record, "relation"),
			Object:     stringValue(record, "object"),
			ChunkID:    stringValue(record, "chunk_id"),
			DocumentID: stringValue(record, "document_id"),
			Distance:   intValue(record, "distance"),
		}
		if fact.Subject == "" || fact.Object == "" {
			continue
		}

		key := fact.Subject + "\x00" + fact.Relation + "\x00" + fact.Object
		if idx, ok := seen[key]; ok {
			if fact.Distance < facts[idx].Distance {
				facts[idx].Distance = fact.Distance
			}
			continue
		}
		seen[key] = len(facts)
		facts = append(facts, fact)
	}

	return facts, nil
}

// DeleteEntity removes an entity and its relationships.
func (n *Neo4j) DeleteEntity(ctx context.Context, name string) error {
	if name == "" {
		return ragerr.Integrity("entity name cannot be empty")
	}

	_, err := n.run(ctx,
		`MATCH (e:Entity {name: $name}) DETACH DELETE e`,
		map[string]any{"name": name})
	if err != nil {
		return ragerr.Transient("deleting entity", err)
	}
	return nil
}

// Close closes the driver.
func (n *Neo4j) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

func stringValue(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func intValue(record *neo4j.Record, key string) int {
	v, ok := record.Get(key)
	if !ok || v == nil {
		return 0
	}
	i, _ := v.(int64)
	return int(i)
}
