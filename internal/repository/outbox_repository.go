package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

type OutboxRepositoryInterface interface {
	Add(ctx context.Context, e *model.OutboxEntry) error
	Delete(ctx context.Context, jobID string) error
	// ClaimStale returns up to limit entries created before olderThan. On
	// Postgres the rows stay locked until the surrounding transaction ends.
	ClaimStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxEntry, error)
}

type OutboxRepository struct {
	DB DBTX
}

// Add records a job. Adding the same job id twice is a no-op.
func (r *OutboxRepository) Add(ctx context.Context, e *model.OutboxEntry) error {
	args, err := json.Marshal(e.Args)
	if err != nil {
		return fmt.Errorf("failed to encode job args: %w", err)
	}
	err = r.DB.QueryRowContext(ctx, `
        INSERT INTO job_outbox (job_id, task, args)
        VALUES ($1, $2, $3)
        ON CONFLICT (job_id) DO NOTHING
        RETURNING id, created_at
    `, e.JobID, e.Task, string(args)).Scan(&e.ID, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	return err
}

func (r *OutboxRepository) Delete(ctx context.Context, jobID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM job_outbox WHERE job_id=$1`, jobID)
	return err
}

func (r *OutboxRepository) ClaimStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, job_id, task, args, created_at
        FROM job_outbox
        WHERE created_at < $1
        ORDER BY created_at
        LIMIT $2
        FOR UPDATE SKIP LOCKED
    `, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*model.OutboxEntry{}
	for rows.Next() {
		e := &model.OutboxEntry{}
		var args []byte
		if err := rows.Scan(&e.ID, &e.JobID, &e.Task, &args, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(args, &e.Args); err != nil {
			return nil, fmt.Errorf("failed to decode args of job %s: %w", e.JobID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ OutboxRepositoryInterface = (*OutboxRepository)(nil)
