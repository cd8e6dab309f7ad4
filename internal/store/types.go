// Package store persists durable records in PostgreSQL: documents and
// their chunks (owned by the ingestion pipeline until terminal status),
// dead-letter records for exhausted ingestion jobs, and conversation
// history for the chat surface.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Document ingestion statuses.
type DocumentStatus string

const (
	StatusPending   DocumentStatus = "pending"
	StatusChunking  DocumentStatus = "chunking"
	StatusEmbedding DocumentStatus = "embedding"
	StatusIndexed   DocumentStatus = "indexed"
	StatusFailed    DocumentStatus = "failed"
)

// validTransitions encodes the document status lifecycle. Terminal
// statuses may re-enter chunking on re-ingestion.
var validTransitions = map[DocumentStatus][]DocumentStatus{
	StatusPending:   {StatusChunking, StatusFailed},
	StatusChunking:  {StatusEmbedding, StatusFailed},
	StatusEmbedding: {StatusIndexed, StatusFailed},
	StatusIndexed:   {StatusChunking},
	StatusFailed:    {StatusChunking},
}

// CanTransition reports whether a document may move from one status to another.
func CanTransition(from, to DocumentStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Document is a raw ingested document. Owned by the ingestion pipeline
// from creation until terminal status; read-only thereafter except for
// re-ingestion.
type Document struct {
	ID        uuid.UUID
	SourceURI string
	Content   string
	Status    DocumentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is a bounded text span derived from a document. Ordinals within
// a document are contiguous and gap-free. Embedded and EntityMentions
// stay empty until the corresponding pipeline stage persists them.
type Chunk struct {
	DocumentID     uuid.UUID
	Ordinal        int
	Text           string
	TokenCount     int
	Embedded       bool
	EntityMentions []string
}

// ChunkID returns the deterministic point/chunk identifier derived from
// (document id, ordinal). Re-ingestion therefore overwrites rather than
// duplicates index entries.
func ChunkID(documentID uuid.UUID, ordinal int) string {
	return uuid.NewSHA1(documentID, []byte{byte(ordinal >> 24), byte(ordinal >> 16), byte(ordinal >> 8), byte(ordinal)}).String()
}

// DeadLetter is a terminal record for an ingestion job that exhausted its
// retry budget, held for manual reprocessing.
type DeadLetter struct {
	ID         int64
	DocumentID uuid.UUID
	Attempts   int
	LastError  string
	Payload    []byte // original queue message, stable across pipeline versions
	CreatedAt  time.Time
}

// Conversation groups chat messages.
type Conversation struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single exchange turn. Role is "user" or "assistant".
type Message struct {
	ID             int64
	ConversationID uuid.UUID
	Role           string
	Content        string
	Degraded       bool // true when the answer was produced from partial retrieval
	CreatedAt      time.Time
}
