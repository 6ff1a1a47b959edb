package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
)

// Handler executes one job. Returning an error marked with
// appErrors.Permanent drops the job; any other error schedules a retry.
type Handler func(ctx context.Context, job Job) error

// Queue delivers jobs at least once with no ordering guarantee.
type Queue interface {
	Publish(ctx context.Context, job Job) error
	Subscribe(task string, handler Handler) error
	// Run consumes jobs until ctx is cancelled.
	Run(ctx context.Context) error
	Close() error
}

// InMemoryQueue runs every published job in its own goroutine, retrying
// failures with a linearly growing backoff.
type InMemoryQueue struct {
	mu         sync.Mutex
	handlers   map[string]Handler
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(maxRetries int, backoff time.Duration, logger *zap.Logger) *InMemoryQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &InMemoryQueue{
		handlers:   make(map[string]Handler),
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Publish hands the job to the subscriber of its task. The job runs detached
// from ctx.
func (q *InMemoryQueue) Publish(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	handler, ok := q.handlers[job.Task]
	if !ok {
		return fmt.Errorf("no subscriber for task %s", job.Task)
	}
	if q.ctx.Err() != nil {
		return fmt.Errorf("queue closed")
	}

	metrics.JobsEnqueuedTotal.WithLabelValues(job.Task).Inc()
	q.wg.Add(1)
	go q.processJob(handler, job)
	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler Handler, job Job) {
	defer q.wg.Done()
	logger := q.logger.With(zap.String("job_id", job.ID), zap.String("task", job.Task))

	for {
		err := handler(q.ctx, job)
		if err == nil {
			metrics.JobResultsTotal.WithLabelValues(job.Task, "success").Inc()
			logger.Debug("job processed", zap.Int("attempt", job.Attempt))
			return
		}

		if appErrors.IsPermanent(err) {
			metrics.JobResultsTotal.WithLabelValues(job.Task, "dropped").Inc()
			logger.Error("job failed permanently, dropping", zap.Error(err))
			return
		}

		job.Attempt++
		if job.Attempt > q.maxRetries {
			metrics.JobResultsTotal.WithLabelValues(job.Task, "dropped").Inc()
			logger.Error("job failed after retries, dropping", zap.Int("attempts", job.Attempt), zap.Error(err))
			return
		}

		metrics.JobResultsTotal.WithLabelValues(job.Task, "retry").Inc()
		logger.Warn("job failed, retrying", zap.Int("attempt", job.Attempt), zap.Int("max_retries", q.maxRetries), zap.Error(err))

		select {
		case <-q.ctx.Done():
			return
		case <-time.After(time.Duration(job.Attempt) * q.backoff):
		}
	}
}

// Subscribe registers the handler for a task, replacing any previous one.
func (q *InMemoryQueue) Subscribe(task string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[task] = handler
	return nil
}

// Run blocks until ctx is cancelled; jobs start as soon as they are published.
func (q *InMemoryQueue) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-q.ctx.Done():
	}
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Close stops retries and waits for running handlers to return.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

var _ Queue = (*InMemoryQueue)(nil)
