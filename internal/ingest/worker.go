package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ragline/ragline/internal/queue"
	"github.com/ragline/ragline/internal/ragerr"
)

// WorkerConfig tunes the ingestion worker pool.
type WorkerConfig struct {
	// Count is the number of concurrent pipeline runs.
	Count int
	// PollInterval is the sleep between polls when the queue is empty.
	PollInterval time.Duration
	// RetryBaseDelay and RetryFactor shape the exponential backoff
	// between attempts.
	RetryBaseDelay time.Duration
	RetryFactor    float64
	// MaxAttempts is the total attempt budget before dead-lettering.
	MaxAttempts int
}

const (
	defaultWorkerCount    = 4
	defaultPollInterval   = 500 * time.Millisecond
	defaultRetryBaseDelay = time.Second
	defaultRetryFactor    = 2.0
	defaultMaxAttempts    = 5
)

// Worker pulls ingestion jobs from the broker and runs them on a
// bounded goroutine pool. Submission blocks when the pool is saturated,
// which throttles dequeueing to processing speed.
type Worker struct {
	broker   queue.Broker
	pipeline *Pipeline
	pool     *ants.Pool
	cfg      WorkerConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewWorker builds a Worker with its goroutine pool.
func NewWorker(broker queue.Broker, pipeline *Pipeline, cfg WorkerConfig, logger *slog.Logger) (*Worker, error) {
	if cfg.Count <= 0 {
		cfg.Count = defaultWorkerCount
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.RetryFactor <= 1 {
		cfg.RetryFactor = defaultRetryFactor
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := ants.NewPool(cfg.Count)
	if err != nil {
		return nil, err
	}
	return &Worker{
		broker:   broker,
		pipeline: pipeline,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run polls the queue until ctx is cancelled, then waits for in-flight
// jobs to finish and releases the pool.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("ingestion worker started",
		"workers", w.cfg.Count,
		"max_attempts", w.cfg.MaxAttempts)

	for {
		if ctx.Err() != nil {
			break
		}

		d, err := w.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			w.logger.Warn("dequeue failed", "error", err)
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}
		if d == nil {
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}

		w.wg.Add(1)
		delivery := d
		if err := w.pool.Submit(func() {
			defer w.wg.Done()
			w.handle(ctx, delivery)
		}); err != nil {
			w.wg.Done()
			// Unsettled delivery; the lease expires and the job
			// is redelivered.
			w.logger.Warn("pool submit failed", "error", err)
			w.sleep(ctx, w.cfg.PollInterval)
		}
	}

	w.wg.Wait()
	w.pool.Release()
	w.logger.Info("ingestion worker stopped")
	return nil
}

// handle runs one leased job to a settlement: ack on success or
// dead-letter, retry with backoff on transient failure. A job
// interrupted by shutdown is left unsettled so the visibility timeout
// redelivers it with the attempt count unchanged.
func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	job := d.Job
	logger := w.logger.With("document_id", job.DocumentID, "attempt", job.Attempt)

	err := w.pipeline.Process(ctx, job.DocumentID)
	if err == nil {
		if ackErr := w.broker.Ack(ctx, d); ackErr != nil {
			logger.Warn("ack failed after success", "error", ackErr)
		}
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		logger.Info("job interrupted, leaving for redelivery")
		return
	}

	if ragerr.IsRetryable(err) && job.Attempt < w.cfg.MaxAttempts {
		delay := queue.RetryDelay(w.cfg.RetryBaseDelay, w.cfg.RetryFactor, job.Attempt)
		next := job
		next.Attempt++
		next.NextRetryAt = time.Now().UTC().Add(delay)

		logger.Warn("job failed, scheduling retry",
			"delay", delay,
			"error", err)
		w.pipeline.MarkRetrying(ctx, job.DocumentID)
		if retryErr := w.broker.Retry(ctx, d, next, delay); retryErr != nil {
			logger.Warn("retry scheduling failed, leaving for redelivery", "error", retryErr)
		}
		return
	}

	logger.Error("job failed terminally, dead-lettering",
		"retryable", ragerr.IsRetryable(err),
		"error", err)
	if dlErr := w.pipeline.MarkFailed(ctx, job.DocumentID, job.Attempt, err, d.Receipt()); dlErr != nil {
		logger.Warn("dead-letter write failed, leaving for redelivery", "error", dlErr)
		return
	}
	if ackErr := w.broker.Ack(ctx, d); ackErr != nil {
		logger.Warn("ack failed after dead-letter", "error", ackErr)
	}
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
