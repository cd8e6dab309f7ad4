package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ragline/ragline/internal/ragerr"
)

// writeJSON writes a JSON response with the given status code.
// Uses buffer-first strategy so headers are only sent after successful
// encoding; an encoding failure still yields a proper 500.
func writeJSON(w http.ResponseWriter, status int, data any) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Debug("failed to write response body", "error", err)
	}
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeTaxonomyError maps the error taxonomy onto HTTP statuses so
// callers can apply their own retry policy by error category.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ragerr.ErrRetrievalUnavailable):
		writeError(w, http.StatusServiceUnavailable, "retrieval_unavailable", "all retrieval sources failed")
	case errors.Is(err, ragerr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ragerr.ErrDataIntegrity):
		writeError(w, http.StatusBadRequest, "data_integrity", err.Error())
	case errors.Is(err, ragerr.ErrTransientStore):
		writeError(w, http.StatusServiceUnavailable, "transient_store", "a backing store is unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
