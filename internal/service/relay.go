package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// OutboxRelay re-publishes jobs whose outbox rows outlived the grace period,
// which happens when the process stops between commit and publish.
type OutboxRelay struct {
	Store     repository.Store
	Queue     queue.Queue
	Interval  time.Duration
	Grace     time.Duration
	BatchSize int
	logger    *zap.Logger
	now       func() time.Time
}

func NewOutboxRelay(store repository.Store, q queue.Queue, interval, grace time.Duration, batchSize int, logger *zap.Logger) *OutboxRelay {
	return &OutboxRelay{
		Store:     store,
		Queue:     q,
		Interval:  interval,
		Grace:     grace,
		BatchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Run relays on every tick until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil {
				r.logger.Warn("outbox relay failed", zap.Error(err))
			}
		}
	}
}

// RelayOnce publishes one batch of stale entries and deletes them. It stops
// at the first publish failure, keeping the rest for the next round.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	var publishErr error

	err := r.Store.WithTx(ctx, func(repos repository.Repos) error {
		entries, err := repos.Outbox.ClaimStale(ctx, r.now().Add(-r.Grace), r.BatchSize)
		if err != nil {
			return fmt.Errorf("claim stale outbox entries: %w", err)
		}
		for _, e := range entries {
			job := queue.Job{ID: e.JobID, Task: e.Task, Args: e.Args}
			if err := r.Queue.Publish(ctx, job); err != nil {
				publishErr = fmt.Errorf("publish job %s: %w", e.JobID, err)
				return nil
			}
			if err := repos.Outbox.Delete(ctx, e.JobID); err != nil {
				return fmt.Errorf("delete outbox entry %s: %w", e.JobID, err)
			}
			relayed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if relayed > 0 {
		metrics.OutboxRelayedTotal.Add(float64(relayed))
		r.logger.Info("outbox jobs relayed", zap.Int("count", relayed))
	}
	return relayed, publishErr
}
