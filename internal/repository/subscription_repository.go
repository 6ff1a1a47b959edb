package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

type SubscriptionRepositoryInterface interface {
	// GetOrCreate inserts s unless a subscription for the same subscriber
	// and campaign exists, in which case that one is returned unchanged.
	GetOrCreate(ctx context.Context, s *model.Subscription) (sub *model.Subscription, created bool, err error)
	Get(ctx context.Context, subscriberID, campaignID int64) (*model.Subscription, error)
	GetByToken(ctx context.Context, token string) (*model.Subscription, error)
	SetActive(ctx context.Context, id int64, active bool) error
	// DeactivateByToken clears the active flag. changed is false when the
	// subscription was already inactive.
	DeactivateByToken(ctx context.Context, token string) (sub *model.Subscription, changed bool, err error)
}

type SubscriptionRepository struct {
	DB DBTX
}

const subscriptionColumns = `id, subscriber_id, campaign_id, token, active, created_at, updated_at`

func scanSubscription(row interface{ Scan(...any) error }) (*model.Subscription, error) {
	var s model.Subscription
	if err := row.Scan(&s.ID, &s.SubscriberID, &s.CampaignID, &s.Token, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SubscriptionRepository) GetOrCreate(ctx context.Context, s *model.Subscription) (*model.Subscription, bool, error) {
	query := `
        INSERT INTO subscriptions (subscriber_id, campaign_id, token, active)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT DO NOTHING
        RETURNING ` + subscriptionColumns
	created, err := scanSubscription(r.DB.QueryRowContext(ctx, query, s.SubscriberID, s.CampaignID, s.Token, s.Active))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert subscription: %w", err)
	}

	existing, err := r.Get(ctx, s.SubscriberID, s.CampaignID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// The conflict was on the token alone.
		return nil, false, fmt.Errorf("subscription token collision for subscriber %d campaign %d", s.SubscriberID, s.CampaignID)
	}
	return existing, false, nil
}

// Get returns nil, nil when the pair has no subscription.
func (r *SubscriptionRepository) Get(ctx context.Context, subscriberID, campaignID int64) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE subscriber_id=$1 AND campaign_id=$2`
	s, err := scanSubscription(r.DB.QueryRowContext(ctx, query, subscriberID, campaignID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriptionRepository) GetByToken(ctx context.Context, token string) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE token=$1`
	s, err := scanSubscription(r.DB.QueryRowContext(ctx, query, token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewSubscriptionNotFound(token)
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriptionRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE subscriptions SET active=$1, updated_at=NOW() WHERE id=$2`, active, id)
	return err
}

func (r *SubscriptionRepository) DeactivateByToken(ctx context.Context, token string) (*model.Subscription, bool, error) {
	query := `
        UPDATE subscriptions SET active=FALSE, updated_at=NOW()
        WHERE token=$1 AND active
        RETURNING ` + subscriptionColumns
	s, err := scanSubscription(r.DB.QueryRowContext(ctx, query, token))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	s, err = r.GetByToken(ctx, token)
	if err != nil {
		return nil, false, err
	}
	return s, false, nil
}

var _ SubscriptionRepositoryInterface = (*SubscriptionRepository)(nil)
