package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/queue"
	"github.com/ragline/ragline/internal/store"
)

// documentStore is the slice of the relational store the document
// surface uses.
type documentStore interface {
	CreateDocument(ctx context.Context, sourceURI, content string) (*store.Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*store.Document, error)
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]store.Chunk, error)
	ListDeadLetters(ctx context.Context, limit int) ([]store.DeadLetter, error)
}

// DocumentHandler serves document submission and inspection.
//
// Endpoints:
//   - POST /api/documents                - submit a document for ingestion
//   - GET  /api/documents/{id}           - ingestion status and chunk stats
//   - POST /api/documents/{id}/reingest  - enqueue an indexed or failed document again
//   - GET  /api/dead-letters             - inspect exhausted jobs
//   - GET  /api/queue/stats              - queue depth
type DocumentHandler struct {
	docs   documentStore
	broker queue.Broker
	logger *slog.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(docs documentStore, broker queue.Broker, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{docs: docs, broker: broker, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents", h.submit)
	mux.HandleFunc("GET /api/documents/{id}", h.get)
	mux.HandleFunc("POST /api/documents/{id}/reingest", h.reingest)
	mux.HandleFunc("GET /api/dead-letters", h.deadLetters)
	mux.HandleFunc("GET /api/queue/stats", h.queueStats)
}

type submitRequest struct {
	SourceURI string `json:"source_uri"`
	Content   string `json:"content"`
}

type documentResponse struct {
	ID        string    `json:"id"`
	SourceURI string    `json:"source_uri"`
	Status    string    `json:"status"`
	Chunks    int       `json:"chunks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// submit persists the document and enqueues an ingestion job.
// Submitting an already known source_uri resets it for re-ingestion.
func (h *DocumentHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.SourceURI == "" {
		writeError(w, http.StatusBadRequest, "missing_source_uri", "source_uri is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "missing_content", "content is required")
		return
	}

	doc, err := h.docs.CreateDocument(r.Context(), req.SourceURI, req.Content)
	if err != nil {
		h.logger.Error("create document failed", "error", err)
		writeTaxonomyError(w, err)
		return
	}

	if err := h.broker.Enqueue(r.Context(), queue.NewJob(doc.ID)); err != nil {
		h.logger.Error("enqueue failed", "document_id", doc.ID, "error", err)
		writeTaxonomyError(w, err)
		return
	}

	h.logger.Info("document submitted", "document_id", doc.ID, "source_uri", doc.SourceURI)
	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc, 0))
}

func (h *DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	chunks, err := h.docs.ListChunks(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDocumentResponse(doc, len(chunks)))
}

// reingest enqueues a fresh job for a document in a terminal status.
func (h *DocumentHandler) reingest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	doc, err := h.docs.GetDocument(r.Context(), id)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	if !store.CanTransition(doc.Status, store.StatusChunking) {
		writeError(w, http.StatusConflict, "not_reingestable",
			"document in status "+string(doc.Status)+" cannot be re-ingested")
		return
	}

	if err := h.broker.Enqueue(r.Context(), queue.NewJob(doc.ID)); err != nil {
		h.logger.Error("enqueue failed", "document_id", doc.ID, "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc, 0))
}

func (h *DocumentHandler) deadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	letters, err := h.docs.ListDeadLetters(r.Context(), limit)
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}

	type deadLetterResponse struct {
		ID         int64     `json:"id"`
		DocumentID string    `json:"document_id"`
		Attempts   int       `json:"attempts"`
		LastError  string    `json:"last_error"`
		CreatedAt  time.Time `json:"created_at"`
	}
	out := make([]deadLetterResponse, len(letters))
	for i, dl := range letters {
		out[i] = deadLetterResponse{
			ID:         dl.ID,
			DocumentID: dl.DocumentID.String(),
			Attempts:   dl.Attempts,
			LastError:  dl.LastError,
			CreatedAt:  dl.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": out})
}

func (h *DocumentHandler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.broker.Stats(r.Context())
	if err != nil {
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{
		"pending":   stats.Pending,
		"delayed":   stats.Delayed,
		"in_flight": stats.InFlight,
	})
}

func (h *DocumentHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_document", "document id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func toDocumentResponse(doc *store.Document, chunks int) documentResponse {
	return documentResponse{
		ID:        doc.ID.String(),
		SourceURI: doc.SourceURI,
		Status:    string(doc.Status),
		Chunks:    chunks,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
