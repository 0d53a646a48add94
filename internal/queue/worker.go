package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/codebuildervaibhav/podcast-summarizer/internal/types"
)

// MaxAttempts bounds how often one delivery is processed before its summary
// is forced to FAILED
const MaxAttempts = 3

// JobHandler processes jobs and records jobs that keep failing
type JobHandler interface {
	Process(ctx context.Context, job *Job) error
	Fail(ctx context.Context, job *Job, cause error) error
}

// WorkerPool manages a pool of workers consuming jobs from a broker
type WorkerPool struct {
	broker      Broker
	handler     JobHandler
	workerCount int
	logger      *zap.Logger

	// retryInterval is the first redelivery delay
	retryInterval time.Duration

	wg sync.WaitGroup
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, broker Broker, handler JobHandler, logger *zap.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		broker:        broker,
		handler:       handler,
		workerCount:   workerCount,
		logger:        logger.With(zap.String("component", "worker-pool")),
		retryInterval: time.Second,
	}
}

// Start launches the workers. They stop when ctx is cancelled or the broker
// is closed; Wait blocks until they have.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.logger.Info("starting worker pool", zap.Int("workers", wp.workerCount))
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go func(id int) {
			defer wp.wg.Done()
			wp.worker(ctx, id)
		}(i)
	}
}

// Wait blocks until every worker has exited
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log := wp.logger.With(zap.Int("worker", id))
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for {
		delivery, err := wp.broker.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrBrokerClosed) {
				return
			}
			log.Error("failed to receive job", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wp.retryInterval):
			}
			continue
		}

		wp.handle(ctx, log, delivery)
	}
}

// handle processes one delivery with bounded retries and acknowledges it
// unless the pool is shutting down.
func (wp *WorkerPool) handle(ctx context.Context, log *zap.Logger, delivery *Delivery) {
	job, err := ParseJob(delivery.Body)
	if err != nil {
		log.Error("dropping invalid job", zap.ByteString("payload", delivery.Body), zap.Error(err))
		wp.ack(log, delivery)
		return
	}
	log = log.With(zap.String("summary_id", job.Data.SummaryID))

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		err := wp.process(ctx, job)
		if err == nil {
			return struct{}{}, nil
		}
		var validation *types.ValidationError
		var panicked *panicError
		if errors.As(err, &validation) || errors.As(err, &panicked) {
			return struct{}{}, backoff.Permanent(err)
		}
		log.Warn("job attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", MaxAttempts), zap.Error(err))
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = wp.retryInterval
	bo.MaxInterval = 30 * time.Second

	_, err = backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(MaxAttempts))
	if err != nil && ctx.Err() != nil {
		// Leave unacknowledged so a durable broker delivers it again.
		log.Info("shutdown interrupted job", zap.Error(err))
		return
	}

	var validation *types.ValidationError
	switch {
	case err == nil:
	case errors.As(err, &validation):
		log.Error("dropping job", zap.Error(err))
	default:
		log.Error("job failed permanently", zap.Int("attempts", attempt), zap.Error(err))
		if ferr := wp.handler.Fail(ctx, job, err); ferr != nil {
			log.Error("failed to mark summary as failed", zap.Error(ferr))
		}
	}

	wp.ack(log, delivery)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("worker panic: %v", e.value)
}

// process runs the handler, converting a panic into an error
func (wp *WorkerPool) process(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Error("panic processing job",
				zap.String("summary_id", job.Data.SummaryID),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = &panicError{value: r}
		}
	}()
	return wp.handler.Process(ctx, job)
}

func (wp *WorkerPool) ack(log *zap.Logger, delivery *Delivery) {
	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := delivery.Ack(ackCtx); err != nil {
		log.Error("failed to acknowledge job", zap.Error(err))
	}
}
