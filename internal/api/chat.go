package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/ragline/ragline/internal/assembler"
	"github.com/ragline/ragline/internal/generation"
	"github.com/ragline/ragline/internal/store"
)

// contextAssembler is the slice of the assembler the chat surface uses.
type contextAssembler interface {
	Assemble(ctx context.Context, query string, budget int, filters map[string]string) (*assembler.AssembledContext, error)
}

// conversationStore persists chat history. Optional; nil disables it.
type conversationStore interface {
	CreateConversation(ctx context.Context, title string) (*store.Conversation, error)
	AddMessage(ctx context.Context, conversationID uuid.UUID, role, content string, degraded bool) error
	ListMessages(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error)
}

// ChatHandler serves the retrieval-augmented chat endpoints.
//
// Endpoints:
//   - POST /api/chat          - synchronous chat (JSON request/response)
//   - POST /api/chat/stream   - streaming chat (Server-Sent Events)
//   - POST /api/conversations - create a conversation
//   - GET  /api/conversations/{id}/messages - list history
type ChatHandler struct {
	assembler contextAssembler
	generator generation.Generator
	convs     conversationStore
	logger    *slog.Logger
}

// NewChatHandler creates a chat handler. convs may be nil to disable
// conversation persistence.
func NewChatHandler(asm contextAssembler, gen generation.Generator, convs conversationStore, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{assembler: asm, generator: gen, convs: convs, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.send)
	mux.HandleFunc("POST /api/chat/stream", h.stream)
	if h.convs != nil {
		mux.HandleFunc("POST /api/conversations", h.createConversation)
		mux.HandleFunc("GET /api/conversations/{id}/messages", h.listMessages)
	}
}

type chatRequest struct {
	Query          string            `json:"query"`
	Budget         int               `json:"budget,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

type sourceRef struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id,omitempty"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
}

type chatResponse struct {
	Answer         string      `json:"answer"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Degraded       bool        `json:"degraded"`
	Truncated      bool        `json:"truncated"`
	FromCache      bool        `json:"from_cache"`
	TokenCount     int         `json:"token_count"`
	Sources        []sourceRef `json:"sources"`
}

// send handles the synchronous chat endpoint.
func (h *ChatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, convID, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	assembled, err := h.assembler.Assemble(ctx, req.Query, req.Budget, req.Filters)
	if err != nil {
		h.logger.Error("context assembly failed", "error", err)
		writeTaxonomyError(w, err)
		return
	}

	answer, err := h.generator.Generate(ctx, req.Query, assembled)
	if err != nil {
		h.logger.Error("generation failed", "error", err)
		writeTaxonomyError(w, err)
		return
	}

	h.persistExchange(ctx, convID, req.Query, answer, assembled.Degraded)
	writeJSON(w, http.StatusOK, h.response(req, answer, assembled))
}

// stream handles the SSE streaming endpoint. Event types:
//   - chunk: partial text {"text": "..."}
//   - done:  final metadata {"degraded": ..., "sources": [...]}
//   - error: {"code": "...", "message": "..."}
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeSSEError(w, flusher, "invalid_request", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Query == "" {
		h.writeSSEError(w, flusher, "missing_query", "query is required")
		return
	}
	convID, err := parseConversationID(req.ConversationID)
	if err != nil {
		h.writeSSEError(w, flusher, "invalid_conversation", err.Error())
		return
	}

	ctx := r.Context()
	assembled, err := h.assembler.Assemble(ctx, req.Query, req.Budget, req.Filters)
	if err != nil {
		h.logger.Error("context assembly failed", "error", err)
		h.writeSSEError(w, flusher, "retrieval_failed", err.Error())
		return
	}

	var full []byte
	err = h.generator.Stream(ctx, req.Query, assembled, func(fragment string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		full = append(full, fragment...)
		h.writeSSEEvent(w, flusher, "chunk", map[string]string{"text": fragment})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected during stream")
			return
		}
		h.logger.Error("stream failed", "error", err)
		h.writeSSEError(w, flusher, "stream_error", err.Error())
		return
	}

	h.persistExchange(ctx, convID, req.Query, string(full), assembled.Degraded)
	h.writeSSEEvent(w, flusher, "done", h.response(req, "", assembled))
}

func (h *ChatHandler) createConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	conv, err := h.convs.CreateConversation(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("create conversation failed", "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": conv.ID.String(), "title": conv.Title})
}

func (h *ChatHandler) listMessages(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation", "conversation id must be a UUID")
		return
	}

	messages, err := h.convs.ListMessages(r.Context(), id, 200)
	if err != nil {
		h.logger.Error("list messages failed", "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *ChatHandler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, uuid.UUID, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return req, uuid.Nil, false
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "query is required")
		return req, uuid.Nil, false
	}
	convID, err := parseConversationID(req.ConversationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_conversation", err.Error())
		return req, uuid.Nil, false
	}
	return req, convID, true
}

// persistExchange records both sides of the exchange. History is best
// effort; a write failure degrades to logging, not to a failed request.
func (h *ChatHandler) persistExchange(ctx context.Context, convID uuid.UUID, query, answer string, degraded bool) {
	if h.convs == nil || convID == uuid.Nil {
		return
	}
	if err := h.convs.AddMessage(ctx, convID, "user", query, false); err != nil {
		h.logger.Warn("failed to persist user message", "error", err)
		return
	}
	if err := h.convs.AddMessage(ctx, convID, "assistant", answer, degraded); err != nil {
		h.logger.Warn("failed to persist assistant message", "error", err)
	}
}

func (h *ChatHandler) response(req chatRequest, answer string, assembled *assembler.AssembledContext) chatResponse {
	sources := make([]sourceRef, len(assembled.Candidates))
	for i, c := range assembled.Candidates {
		sources[i] = sourceRef{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Score:      c.Score,
			Source:     string(c.Source),
		}
	}
	return chatResponse{
		Answer:         answer,
		ConversationID: req.ConversationID,
		Degraded:       assembled.Degraded,
		Truncated:      assembled.Truncated,
		FromCache:      assembled.FromCache,
		TokenCount:     assembled.TokenCount,
		Sources:        sources,
	}
}

func parseConversationID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("conversation id must be a UUID")
	}
	return id, nil
}

type sseEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (h *ChatHandler) writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(sseEvent{Event: event, Data: data})
	if err != nil {
		h.logger.Error("failed to encode SSE event", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
}

func (h *ChatHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	h.writeSSEEvent(w, flusher, "error", map[string]string{"code": code, "message": message})
}
