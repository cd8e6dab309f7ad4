// Package queue implements the ingestion job queue on the Redis cache
// layer: FIFO delivery with a visibility-timeout lease, at-least-once
// semantics, and a delayed set for retry scheduling.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// IngestionJob is the queue message. The JSON field names are the wire
// format and must remain stable across pipeline versions so dead-letter
// records stay reprocessable.
type IngestionJob struct {
	DocumentID  uuid.UUID `json:"document_id"`
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
}

// NewJob creates a first-attempt job for a document.
func NewJob(documentID uuid.UUID) IngestionJob {
	return IngestionJob{
		DocumentID: documentID,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Marshal serializes the job for the wire.
func (j IngestionJob) Marshal() ([]byte, error) {
	data, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("marshaling job: %w", err)
	}
	return data, nil
}

// UnmarshalJob deserializes a wire payload.
func UnmarshalJob(data []byte) (IngestionJob, error) {
	var j IngestionJob
	if err := json.Unmarshal(data, &j); err != nil {
		return IngestionJob{}, fmt.Errorf("unmarshaling job: %w", err)
	}
	if j.DocumentID == uuid.Nil {
		return IngestionJob{}, fmt.Errorf("job missing document_id")
	}
	return j, nil
}

// RetryDelay computes the exponential backoff delay before the given
// attempt is retried: base * factor^(attempt-1).
func RetryDelay(base time.Duration, factor float64, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= factor
	}
	return time.Duration(delay)
}
