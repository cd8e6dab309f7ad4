package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ragline/ragline/internal/ragerr"
)

// Redis key layout. Members of the delayed and in-flight sorted sets are
// raw job payloads; scores are unix millisecond timestamps (visibility
// expiry or retry due time).
const (
	pendingKey  = "ragline:ingest:pending"
	delayedKey  = "ragline:ingest:delayed"
	inflightKey = "ragline:ingest:inflight"
	poisonKey   = "ragline:ingest:poison"
)

// dequeueScript atomically pops the next pending payload and leases it.
// A crash between pop and lease would otherwise lose the job.
var dequeueScript = redis.NewScript(`
local payload = redis.call('RPOP', KEYS[1])
if payload then
    redis.call('ZADD', KEYS[2], ARGV[1], payload)
end
return payload
`)

// promoteScript moves due members of a sorted set back onto the pending
// list. Used for both retry promotion and expired-lease reclamation.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, payload in ipairs(due) do
    redis.call('ZREM', KEYS[1], payload)
    redis.call('LPUSH', KEYS[2], payload)
end
return #due
`)

// RedisBroker implements Broker on a shared Redis connection.
type RedisBroker struct {
	client     *redis.Client
	visibility time.Duration
	logger     *slog.Logger
}

// NewRedisBroker creates a broker using the cache layer's connection.
func NewRedisBroker(client *redis.Client, visibility time.Duration, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBroker{
		client:     client,
		visibility: visibility,
		logger:     logger,
	}
}

// Enqueue makes a job immediately visible.
func (b *RedisBroker) Enqueue(ctx context.Context, job IngestionJob) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, pendingKey, payload).Err(); err != nil {
		return ragerr.Transient("enqueuing job", err)
	}
	b.logger.Debug("job enqueued", "document_id", job.DocumentID, "attempt", job.Attempt)
	return nil
}

// Dequeue promotes due retries, reclaims expired leases, then leases the
// next pending job. Returns (nil, nil) when the queue is empty.
func (b *RedisBroker) Dequeue(ctx context.Context) (*Delivery, error) {
	now := time.Now().UnixMilli()
	nowArg := strconv.FormatInt(now, 10)

	// Retries whose backoff elapsed become visible again.
	if err := promoteScript.Run(ctx, b.client, []string{delayedKey, pendingKey}, nowArg).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, ragerr.Transient("promoting delayed jobs", err)
	}
	// Jobs whose worker died mid-flight reappear after the lease expires.
	if err := promoteScript.Run(ctx, b.client, []string{inflightKey, pendingKey}, nowArg).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return nil, ragerr.Transient("reclaiming expired leases", err)
	}

	expiry := strconv.FormatInt(time.Now().Add(b.visibility).UnixMilli(), 10)
	result, err := dequeueScript.Run(ctx, b.client, []string{pendingKey, inflightKey}, expiry).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, ragerr.Transient("dequeuing job", err)
	}

	payload, ok := result.(string)
	if !ok {
		return nil, ragerr.Integrity("unexpected dequeue result type %T", result)
	}

	job, err := UnmarshalJob([]byte(payload))
	if err != nil {
		b.quarantine(ctx, payload)
		return nil, ragerr.Integrity("poison queue payload: %v", err)
	}

	return &Delivery{Job: job, receipt: payload}, nil
}

// quarantine records an undecodable payload under the poison key for
// manual inspection, then drops its lease so it stops looping. The
// record is written before the lease is released; a crash in between
// redelivers the payload after the lease expires.
func (b *RedisBroker) quarantine(ctx context.Context, payload string) {
	if err := b.client.LPush(ctx, poisonKey, payload).Err(); err != nil {
		b.logger.Warn("recording poison payload failed", "error", err)
	}
	if err := b.client.ZRem(ctx, inflightKey, payload).Err(); err != nil {
		b.logger.Warn("dropping poison lease failed", "error", err)
	}
	b.logger.Error("poison payload quarantined", "key", poisonKey)
}

// Ack settles a delivery.
func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.ZRem(ctx, inflightKey, d.receipt).Err(); err != nil {
		return ragerr.Transient("acking job", err)
	}
	return nil
}

// Retry settles a delivery and schedules the updated job after delay.
func (b *RedisBroker) Retry(ctx context.Context, d *Delivery, job IngestionJob, delay time.Duration) error {
	payload, err := job.Marshal()
	if err != nil {
		return err
	}

	due := float64(time.Now().Add(delay).UnixMilli())
	pipe := b.client.TxPipeline()
	pipe.ZRem(ctx, inflightKey, d.receipt)
	pipe.ZAdd(ctx, delayedKey, redis.Z{Score: due, Member: payload})
	if _, err := pipe.Exec(ctx); err != nil {
		return ragerr.Transient("scheduling retry", err)
	}

	b.logger.Debug("job scheduled for retry",
		"document_id", job.DocumentID, "attempt", job.Attempt, "delay", delay)
	return nil
}

// Stats reports current queue depth.
func (b *RedisBroker) Stats(ctx context.Context) (Stats, error) {
	pipe := b.client.Pipeline()
	pending := pipe.LLen(ctx, pendingKey)
	delayed := pipe.ZCard(ctx, delayedKey)
	inflight := pipe.ZCard(ctx, inflightKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, ragerr.Transient("reading queue stats", err)
	}

	return Stats{
		Pending:  pending.Val(),
		Delayed:  delayed.Val(),
		InFlight: inflight.Val(),
	}, nil
}

var _ Broker = (*RedisBroker)(nil)

// String implements Stringer for debug logging.
func (s Stats) String() string {
	return fmt.Sprintf("pending=%d delayed=%d inflight=%d", s.Pending, s.Delayed, s.InFlight)
}
