// Package ragerr defines the error taxonomy shared by the store clients,
// the context assembler and the ingestion pipeline.
//
// Raw backend errors (pgx, qdrant, neo4j, redis, openai) are converted to
// one of these categories at the client boundary and never cross it.
// Callers classify with errors.Is:
//
//	if errors.Is(err, ragerr.ErrTransientStore) {
//	    // retry with backoff
//	}
package ragerr

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy. Wrapped errors retain the
// backend detail for logging while remaining matchable with errors.Is.
var (
	// ErrTransientStore indicates a network or timeout failure against a
	// backend. Safe to retry with backoff.
	ErrTransientStore = errors.New("transient store error")

	// ErrDataIntegrity indicates malformed data such as an embedding
	// dimension mismatch. Fatal for the affected item; never retried.
	ErrDataIntegrity = errors.New("data integrity error")

	// ErrRetrievalUnavailable indicates that every retrieval source failed.
	// Surfaced to the caller as a hard failure; generation is aborted.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrQuotaExceeded indicates the token budget cannot be computed,
	// e.g. a single candidate exceeds the full budget.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Transient wraps err as a transient store error.
// Returns nil if err is nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrTransientStore, op, err)
}

// Integrity wraps a data integrity violation with a formatted detail.
func Integrity(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDataIntegrity, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether err should be retried with backoff.
// Only transient store errors qualify; integrity and quota errors are final.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientStore)
}
