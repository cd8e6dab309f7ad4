package queue

import (
	"context"
	"time"
)

// Delivery is a dequeued job plus the receipt needed to settle it.
// The receipt is the exact wire payload under lease; settling removes it
// from the in-flight set.
type Delivery struct {
	Job     IngestionJob
	receipt string
}

// Receipt exposes the raw payload, e.g. for dead-letter records.
func (d *Delivery) Receipt() []byte {
	return []byte(d.receipt)
}

// Stats describes queue depth for observability.
type Stats struct {
	Pending  int64
	Delayed  int64
	InFlight int64
}

// Broker is the queue contract consumed by the ingestion pipeline:
// at-least-once delivery, with unacknowledged jobs becoming visible
// again after the visibility timeout.
type Broker interface {
	// Enqueue makes a job immediately visible to workers.
	Enqueue(ctx context.Context, job IngestionJob) error

	// Dequeue leases the next visible job for the visibility timeout.
	// Returns (nil, nil) when no job is ready.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Ack settles a delivery after terminal processing (success, or
	// failure that was dead-lettered).
	Ack(ctx context.Context, d *Delivery) error

	// Retry settles a delivery and schedules the updated job to become
	// visible again after delay.
	Retry(ctx context.Context, d *Delivery, job IngestionJob, delay time.Duration) error

	// Stats reports current queue depth.
	Stats(ctx context.Context) (Stats, error)
}
