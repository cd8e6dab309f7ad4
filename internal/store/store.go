package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragline/ragline/internal/ragerr"
)

// Store manages durable records with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an existing connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Connect opens a pgx pool and verifies connectivity.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, ragerr.Transient("postgres ping", err)
	}

	return New(pool, logger), nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, used by readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return ragerr.Transient("postgres ping", err)
	}
	return nil
}

// CreateDocument inserts a document in pending status, or resets an
// existing one with the same source URI for re-ingestion.
func (s *Store) CreateDocument(ctx context.Context, sourceURI, content string) (*Document, error) {
	if sourceURI == "" {
		return nil, ragerr.Integrity("source URI cannot be empty")
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO documents (id, source_uri, content, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_uri) DO UPDATE
		SET content = EXCLUDED.content, status = $4, updated_at = now()
		RETURNING id, source_uri, content, status, created_at, updated_at`,
		uuid.New(), sourceURI, content, StatusPending)

	doc, err := scanDocument(row)
	if err != nil {
		return nil, ragerr.Transient("creating document", err)
	}

	s.logger.Debug("created document", "id", doc.ID, "source", doc.SourceURI)
	return doc, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, source_uri, content, status, created_at, updated_at
		FROM documents WHERE id = $1`, id)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", id, ragerr.ErrNotFound)
		}
		return nil, ragerr.Transient("getting document", err)
	}
	return doc, nil
}

// TransitionStatus moves a document through its lifecycle, rejecting
// transitions the lifecycle does not allow.
func (s *Store) TransitionStatus(ctx context.Context, id uuid.UUID, to DocumentStatus) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ragerr.Transient("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current DocumentStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM documents WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("document %s: %w", id, ragerr.ErrNotFound)
		}
		return ragerr.Transient("locking document", err)
	}

	if !CanTransition(current, to) {
		return ragerr.Integrity("invalid status transition %s -> %s for document %s", current, to, id)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE documents SET status = $2, updated_at = now() WHERE id = $1`, id, to); err != nil {
		return ragerr.Transient("updating status", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ragerr.Transient("committing status transition", err)
	}

	s.logger.Debug("document status changed", "id", id, "from", current, "to", to)
	return nil
}

// ReplaceChunks atomically replaces a document's chunk set. Ordinals
// must start at zero and be gap-free.
func (s *Store) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error {
	for i, c := range chunks {
		if c.Ordinal != i {
			return ragerr.Integrity("chunk ordinals must be contiguous: index %d has ordinal %d", i, c.Ordinal)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ragerr.Transient("beginning transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM chunks WHERE document_id = $1`, documentID); err != nil {
		return ragerr.Transient("clearing chunks", err)
	}

	for _, c := range chunks {
		_, err := tx.Exec(ctx, `
			INSERT INTO chunks (document_id, ordinal, text, token_count, embedded, entity_mentions)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			documentID, c.Ordinal, c.Text, c.TokenCount, c.Embedded, c.EntityMentions)
		if err != nil {
			return ragerr.Transient(fmt.Sprintf("inserting chunk %d", c.Ordinal), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ragerr.Transient("committing chunks", err)
	}
	return nil
}

// MarkChunkProcessed records that a chunk's embedding and graph
// extraction results have been persisted.
func (s *Store) MarkChunkProcessed(ctx context.Context, documentID uuid.UUID, ordinal int, mentions []string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chunks SET embedded = true, entity_mentions = $3
		WHERE document_id = $1 AND ordinal = $2`,
		documentID, ordinal, mentions)
	if err != nil {
		return ragerr.Transient("marking chunk processed", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk (%s, %d): %w", documentID, ordinal, ragerr.ErrNotFound)
	}
	return nil
}

// ListChunks returns a document's chunks ordered by ordinal.
func (s *Store) ListChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT document_id, ordinal, text, token_count, embedded, entity_mentions
		FROM chunks WHERE document_id = $1 ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, ragerr.Transient("listing chunks", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.DocumentID, &c.Ordinal, &c.Text, &c.TokenCount, &c.Embedded, &c.EntityMentions); err != nil {
			return nil, ragerr.Transient("scanning chunk", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Transient("iterating chunks", err)
	}
	return chunks, nil
}

// AddDeadLetter records a job that exhausted its retry budget.
func (s *Store) AddDeadLetter(ctx context.Context, documentID uuid.UUID, attempts int, lastError string, payload []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO dead_letters (document_id, attempts, last_error, payload)
		VALUES ($1, $2, $3, $4)`,
		documentID, attempts, lastError, payload)
	if err != nil {
		return ragerr.Transient("adding dead letter", err)
	}

	s.logger.Warn("job dead-lettered", "document_id", documentID, "attempts", attempts, "error", lastError)
	return nil
}

// ListDeadLetters returns dead-letter records, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, document_id, attempts, last_error, payload, created_at
		FROM dead_letters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, ragerr.Transient("listing dead letters", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.DocumentID, &d.Attempts, &d.LastError, &d.Payload, &d.CreatedAt); err != nil {
			return nil, ragerr.Transient("scanning dead letter", err)
		}
		letters = append(letters, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Transient("iterating dead letters", err)
	}
	return letters, nil
}

// DeleteDeadLetter removes a dead-letter record after manual reprocessing.
func (s *Store) DeleteDeadLetter(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return ragerr.Transient("deleting dead letter", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("dead letter %d: %w", id, ragerr.ErrNotFound)
	}
	return nil
}

// CreateConversation starts a new conversation.
func (s *Store) CreateConversation(ctx context.Context, title string) (*Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, title)
		VALUES ($1, $2)
		RETURNING id, title, created_at, updated_at`,
		uuid.New(), title).Scan(&c.ID, &c.Title, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, ragerr.Transient("creating conversation", err)
	}
	return &c, nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string, degraded bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (conversation_id, role, content, degraded)
		VALUES ($1, $2, $3, $4)`,
		conversationID, role, content, degraded)
	if err != nil {
		return ragerr.Transient("adding message", err)
	}
	return nil
}

// ListMessages returns a conversation's messages in chronological order.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, degraded, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, ragerr.Transient("listing messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Degraded, &m.CreatedAt); err != nil {
			return nil, ragerr.Transient("scanning message", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, ragerr.Transient("iterating messages", err)
	}
	return messages, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.SourceURI, &d.Content, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
