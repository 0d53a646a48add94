package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBrokerClosed is returned once a broker has been closed
var ErrBrokerClosed = errors.New("broker closed")

// Delivery is one received payload. It stays owned by the consumer until
// Ack; unacknowledged deliveries may be delivered again.
type Delivery struct {
	Body []byte
	ack  func(context.Context) error
}

// Ack removes the delivery from the broker
func (d *Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// Broker transports job payloads from the submitter to the workers with
// at-least-once delivery.
type Broker interface {
	Publish(ctx context.Context, job *Job) error
	Receive(ctx context.Context) (*Delivery, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryBroker is an in-process broker backed by a buffered channel
type MemoryBroker struct {
	jobs      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryBroker creates an in-memory broker holding up to capacity jobs
func NewMemoryBroker(capacity int) *MemoryBroker {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryBroker{
		jobs:   make(chan []byte, capacity),
		closed: make(chan struct{}),
	}
}

// Publish queues a job, blocking while the buffer is full
func (b *MemoryBroker) Publish(ctx context.Context, job *Job) error {
	payload, err := job.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	select {
	case <-b.closed:
		return ErrBrokerClosed
	default:
	}
	select {
	case b.jobs <- payload:
		return nil
	case <-b.closed:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a job is available
func (b *MemoryBroker) Receive(ctx context.Context) (*Delivery, error) {
	select {
	case payload := <-b.jobs:
		return &Delivery{Body: payload}, nil
	case <-b.closed:
		return nil, ErrBrokerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of queued jobs
func (b *MemoryBroker) Len(context.Context) (int, error) {
	return len(b.jobs), nil
}

// Close stops the broker; queued jobs are dropped
func (b *MemoryBroker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

// RedisBroker is a reliable queue: jobs are pushed on the head of a list and
// atomically moved to a processing list when received. Ack removes them from
// the processing list; whatever is left there at startup is queued again.
type RedisBroker struct {
	client        redis.Cmdable
	queueKey      string
	processingKey string
	blockTimeout  time.Duration
	logger        *zap.Logger
}

// NewRedisBroker creates a broker using keys under prefix and re-queues jobs
// that a previous process received but never acknowledged.
func NewRedisBroker(ctx context.Context, client redis.Cmdable, prefix string, logger *zap.Logger) (*RedisBroker, error) {
	if prefix == "" {
		prefix = "podcast-summarizer"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &RedisBroker{
		client:        client,
		queueKey:      prefix + ":jobs",
		processingKey: prefix + ":jobs:processing",
		blockTimeout:  time.Second,
		logger:        logger.With(zap.String("component", "redis-broker")),
	}

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	requeued, err := b.requeueProcessing(ctx)
	if err != nil {
		return nil, err
	}
	if requeued > 0 {
		b.logger.Info("requeued unacknowledged jobs", zap.Int("count", requeued))
	}
	return b, nil
}

func (b *RedisBroker) requeueProcessing(ctx context.Context) (int, error) {
	count := 0
	for {
		// Newest first onto the pop end, so the oldest is received first.
		err := b.client.LMove(ctx, b.processingKey, b.queueKey, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to requeue processing jobs: %w", err)
		}
		count++
	}
}

// Publish pushes a job onto the queue
func (b *RedisBroker) Publish(ctx context.Context, job *Job) error {
	payload, err := job.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := b.client.LPush(ctx, b.queueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish job: %w", err)
	}
	return nil
}

// Receive blocks until a job is available, moving it to the processing list
func (b *RedisBroker) Receive(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		payload, err := b.client.BLMove(ctx, b.queueKey, b.processingKey, "RIGHT", "LEFT", b.blockTimeout).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to receive job: %w", err)
		}
		return &Delivery{
			Body: []byte(payload),
			ack: func(ctx context.Context) error {
				return b.client.LRem(ctx, b.processingKey, 1, payload).Err()
			},
		}, nil
	}
}

// Len returns the number of jobs waiting to be received
func (b *RedisBroker) Len(ctx context.Context) (int, error) {
	n, err := b.client.LLen(ctx, b.queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the redis client is owned by the caller
func (b *RedisBroker) Close() error {
	return nil
}
