package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/ragline/ragline/internal/log"
	"github.com/ragline/ragline/internal/ragerr"
)

func TestFactStatement(t *testing.T) {
	f := Fact{Subject: "chlorophyll", Relation: "absorbs", Object: "light"}
	if got := f.Statement(); got != "chlorophyll absorbs light" {
		t.Errorf("Statement() = %q", got)
	}
}

// Validation errors fire before any query is issued, so they are
// testable without a running server.

func TestUpsertEntityRejectsEmptyName(t *testing.T) {
	n := &Neo4j{logger: log.NewNop()}
	if err := n.UpsertEntity(context.Background(), Entity{}); !errors.Is(err, ragerr.ErrDataIntegrity) {
		t.Errorf("expected ErrDataIntegrity, got %v", err)
	}
}

func TestUpsertRelationshipRejectsEmptyFields(t *testing.T) {
	n := &Neo4j{logger: log.NewNop()}
	tests := []Relationship{
		{To: "b", Relation: "r"},
		{From: "a", Relation: "r"},
		{From: "a", To: "b"},
	}
	for _, r := range tests {
		if err := n.UpsertRelationship(context.Background(), r); !errors.Is(err, ragerr.ErrDataIntegrity) {
			t.Errorf("relationship %+v: expected ErrDataIntegrity, got %v", r, err)
		}
	}
}

func TestTraverseValidatesHops(t *testing.T) {
	n := &Neo4j{logger: log.NewNop()}

	if _, err := n.Traverse(context.Background(), []string{"x"}, 0); !errors.Is(err, ragerr.ErrDataIntegrity) {
		t.Errorf("hops=0: expected ErrDataIntegrity, got %v", err)
	}
	if _, err := n.Traverse(context.Background(), []string{"x"}, maxHopsLimit+1); !errors.Is(err, ragerr.ErrDataIntegrity) {
		t.Errorf("hops over limit: expected ErrDataIntegrity, got %v", err)
	}
}

func TestTraverseEmptySeeds(t *testing.T) {
	n := &Neo4j{logger: log.NewNop()}
	facts, err := n.Traverse(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("empty seeds should short-circuit, got %v", err)
	}
	if facts != nil {
		t.Errorf("expected nil facts, got %v", facts)
	}
}
