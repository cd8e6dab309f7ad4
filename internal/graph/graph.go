// Package graph provides the entity/relationship store abstraction used
// for fact traversal during retrieval.
//
// Store is the capability interface consumed by the context assembler and
// the ingestion pipeline; Neo4j is the production backend.
package graph

import "context"

// Entity is a named node in the graph.
type Entity struct {
	Name string
	Kind string // e.g. "concept", "person"; free-form
}

// Relationship is a directed edge between two entities, carrying the
// provenance chunk it was extracted from.
type Relationship struct {
	From       string
	To         string
	Relation   string
	ChunkID    string
	DocumentID string
}

// Fact is a relationship reached during traversal. Distance is the hop
// count from the nearest seed entity (1 = directly connected).
type Fact struct {
	Subject    string
	Relation   string
	Object     string
	ChunkID    string
	DocumentID string
	Distance   int
}

// Statement renders the fact as a short text span for context assembly.
func (f Fact) Statement() string {
	return f.Subject + " " + f.Relation + " " + f.Object
}

// Store is the capability interface over entity/relationship queries.
// Implementations convert backend errors to the ragerr taxonomy and must
// honor context cancellation on every call.
type Store interface {
	// UpsertEntity inserts or updates an entity keyed by name.
	UpsertEntity(ctx context.Context, e Entity) error

	// UpsertRelationship inserts or updates an edge, creating missing
	// endpoint entities. Keyed by (from, relation, to) so re-ingestion
	// does not duplicate edges.
	UpsertRelationship(ctx context.Context, r Relationship) error

	// Traverse returns facts within maxHops of the seed entities,
	// each at its minimal hop distance.
	Traverse(ctx context.Context, seeds []string, maxHops int) ([]Fact, error)

	// DeleteEntity removes an entity and its relationships.
	DeleteEntity(ctx context.Context, name string) error
}
