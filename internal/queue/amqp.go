package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
)

const retryHeader = "x-retry-count"

// AMQPQueue publishes jobs as persistent JSON messages on a durable queue.
// Failed jobs are re-published with an incremented retry header and the
// original delivery is acked.
type AMQPQueue struct {
	conn       *amqp.Connection
	name       string
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger

	pubMu sync.Mutex
	pubCh *amqp.Channel

	mu       sync.Mutex
	handlers map[string]Handler
}

func NewAMQPQueue(url, name string, maxRetries int, backoff time.Duration, logger *zap.Logger) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}

	return &AMQPQueue{
		conn:       conn,
		name:       name,
		maxRetries: maxRetries,
		backoff:    backoff,
		logger:     logger,
		pubCh:      ch,
		handlers:   make(map[string]Handler),
	}, nil
}

func (q *AMQPQueue) Publish(ctx context.Context, job Job) error {
	if err := q.publish(job); err != nil {
		return err
	}
	metrics.JobsEnqueuedTotal.WithLabelValues(job.Task).Inc()
	return nil
}

func (q *AMQPQueue) publish(job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	return q.pubCh.Publish(
		"",
		q.name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Timestamp:    time.Now(),
			Headers:      amqp.Table{retryHeader: int32(job.Attempt)},
			Body:         body,
		},
	)
}

func (q *AMQPQueue) Subscribe(task string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[task] = handler
	return nil
}

// Run consumes with manual acks until ctx is cancelled or the channel closes.
func (q *AMQPQueue) Run(ctx context.Context) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open a channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := ch.Consume(
		q.name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("worker consuming", zap.String("queue", q.name))
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			q.handleDelivery(ctx, d)
		}
	}
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		q.logger.Error("invalid job, dropping", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Ack(false)
		return
	}
	job.Attempt = retryCount(d.Headers)
	logger := q.logger.With(zap.String("job_id", job.ID), zap.String("task", job.Task))

	q.mu.Lock()
	handler, ok := q.handlers[job.Task]
	q.mu.Unlock()
	if !ok {
		metrics.JobResultsTotal.WithLabelValues(job.Task, "requeued").Inc()
		logger.Error("no handler for task, requeueing")
		_ = d.Nack(false, true)
		return
	}

	err := handler(ctx, job)
	switch {
	case err == nil:
		metrics.JobResultsTotal.WithLabelValues(job.Task, "success").Inc()
		logger.Debug("job processed", zap.Int("attempt", job.Attempt))

	case appErrors.IsPermanent(err):
		metrics.JobResultsTotal.WithLabelValues(job.Task, "dropped").Inc()
		logger.Error("job failed permanently, dropping", zap.Error(err))

	case job.Attempt+1 > q.maxRetries:
		metrics.JobResultsTotal.WithLabelValues(job.Task, "dropped").Inc()
		logger.Error("job failed after retries, dropping", zap.Int("attempts", job.Attempt+1), zap.Error(err))

	default:
		job.Attempt++
		logger.Warn("job failed, retrying", zap.Int("attempt", job.Attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			_ = d.Nack(false, true)
			return
		case <-time.After(time.Duration(job.Attempt) * q.backoff):
		}
		if pubErr := q.publish(job); pubErr != nil {
			logger.Error("failed to re-publish job, requeueing original", zap.Error(pubErr))
			_ = d.Nack(false, true)
			return
		}
		metrics.JobResultsTotal.WithLabelValues(job.Task, "retry").Inc()
	}
	_ = d.Ack(false)
}

// retryCount reads the retry header whatever integer type the broker used.
func retryCount(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int:
		return v
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (q *AMQPQueue) Close() error {
	q.pubMu.Lock()
	defer q.pubMu.Unlock()
	if err := q.pubCh.Close(); err != nil {
		q.logger.Warn("failed to close channel", zap.Error(err))
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
