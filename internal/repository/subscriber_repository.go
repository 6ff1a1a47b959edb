package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

type SubscriberRepositoryInterface interface {
	// GetOrCreate returns the subscriber for email, creating it when absent.
	// created is false when the row already existed, including when a
	// concurrent request inserted it first.
	GetOrCreate(ctx context.Context, email string) (sub *model.Subscriber, created bool, err error)
	GetByEmail(ctx context.Context, email string) (*model.Subscriber, error)
}

type SubscriberRepository struct {
	DB DBTX
}

func (r *SubscriberRepository) GetOrCreate(ctx context.Context, email string) (*model.Subscriber, bool, error) {
	query := `
        INSERT INTO subscribers (email)
        VALUES ($1)
        ON CONFLICT (email) DO NOTHING
        RETURNING id, email, created_at
    `
	var s model.Subscriber
	err := r.DB.QueryRowContext(ctx, query, email).Scan(&s.ID, &s.Email, &s.CreatedAt)
	if err == nil {
		return &s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert subscriber: %w", err)
	}

	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByEmail returns nil, nil when no subscriber has that address.
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	query := `SELECT id, email, created_at FROM subscribers WHERE email=$1`
	var s model.Subscriber
	if err := r.DB.QueryRowContext(ctx, query, email).Scan(&s.ID, &s.Email, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
