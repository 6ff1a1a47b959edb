package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos bundles the repositories bound to one connection or transaction.
type Repos struct {
	Campaigns     CampaignRepositoryInterface
	Subscribers   SubscriberRepositoryInterface
	Subscriptions SubscriptionRepositoryInterface
	Messages      MessageRepositoryInterface
	Outbox        OutboxRepositoryInterface
}

// Store hands out repositories and runs functions inside a transaction.
// WithTx commits when fn returns nil and rolls back otherwise.
type Store interface {
	Repos() Repos
	WithTx(ctx context.Context, fn func(Repos) error) error
	Close() error
}

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func newRepos(q DBTX) Repos {
	return Repos{
		Campaigns:     &CampaignRepository{DB: q},
		Subscribers:   &SubscriberRepository{DB: q},
		Subscriptions: &SubscriptionRepository{DB: q},
		Messages:      &MessageRepository{DB: q},
		Outbox:        &OutboxRepository{DB: q},
	}
}

func (s *PostgresStore) Repos() Repos {
	return newRepos(s.DB)
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Repos) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.DB.Close()
}

var _ Store = (*PostgresStore)(nil)
