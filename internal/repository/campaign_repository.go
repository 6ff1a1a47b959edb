package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByName(ctx context.Context, name string) (*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)

	// Responders, without templates, whose frequency is one of freqs.
	ListResponders(ctx context.Context, campaignID int64, freqs ...model.Frequency) ([]*model.AutoResponder, error)
	// A single responder with its templates ordered by position.
	GetResponder(ctx context.Context, id int64) (*model.AutoResponder, error)

	// Admin writes used by the seeder.
	UpsertCampaign(ctx context.Context, c *model.Campaign) error
	ReplaceResponders(ctx context.Context, campaignID int64, responders []*model.AutoResponder) error
}

type CampaignRepository struct {
	DB DBTX
}

const campaignColumns = `id, name, title, contact_email, unsubscribe_msg, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(&c.ID, &c.Name, &c.Title, &c.ContactEmail, &c.UnsubscribeMsg, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) GetByName(ctx context.Context, name string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE name=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(name)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignIDNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListResponders(ctx context.Context, campaignID int64, freqs ...model.Frequency) ([]*model.AutoResponder, error) {
	names := make([]string, len(freqs))
	for i, f := range freqs {
		names[i] = string(f)
	}

	query := `
        SELECT id, campaign_id, name, frequency, created_at
        FROM auto_responders
        WHERE campaign_id=$1 AND frequency = ANY($2)
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query, campaignID, pq.Array(names))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responders := []*model.AutoResponder{}
	for rows.Next() {
		ar := &model.AutoResponder{}
		if err := rows.Scan(&ar.ID, &ar.CampaignID, &ar.Name, &ar.Frequency, &ar.CreatedAt); err != nil {
			return nil, err
		}
		responders = append(responders, ar)
	}
	return responders, rows.Err()
}

func (r *CampaignRepository) GetResponder(ctx context.Context, id int64) (*model.AutoResponder, error) {
	query := `SELECT id, campaign_id, name, frequency, created_at FROM auto_responders WHERE id=$1`
	ar := &model.AutoResponder{}
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&ar.ID, &ar.CampaignID, &ar.Name, &ar.Frequency, &ar.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewResponderNotFound(id)
		}
		return nil, err
	}

	rows, err := r.DB.QueryContext(ctx, `
        SELECT id, responder_id, name, body, language, keywords, is_default, position
        FROM templates
        WHERE responder_id=$1
        ORDER BY position, id
    `, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		t := &model.Template{}
		if err := rows.Scan(&t.ID, &t.ResponderID, &t.Name, &t.Body, &t.Language, pq.Array(&t.Keywords), &t.IsDefault, &t.Position); err != nil {
			return nil, err
		}
		ar.Templates = append(ar.Templates, t)
	}
	return ar, rows.Err()
}

// UpsertCampaign inserts the campaign or updates the one with the same name,
// filling in ID and CreatedAt.
func (r *CampaignRepository) UpsertCampaign(ctx context.Context, c *model.Campaign) error {
	query := `
        INSERT INTO campaigns (name, title, contact_email, unsubscribe_msg)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (name) DO UPDATE
        SET title=EXCLUDED.title,
            contact_email=EXCLUDED.contact_email,
            unsubscribe_msg=EXCLUDED.unsubscribe_msg,
            updated_at=NOW()
        RETURNING id, created_at, updated_at
    `
	return r.DB.QueryRowContext(ctx, query, c.Name, c.Title, c.ContactEmail, c.UnsubscribeMsg).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

// ReplaceResponders makes the campaign's responders exactly the given list.
// Responders are matched by name so that existing ids survive a reseed.
func (r *CampaignRepository) ReplaceResponders(ctx context.Context, campaignID int64, responders []*model.AutoResponder) error {
	names := make([]string, 0, len(responders))
	for _, ar := range responders {
		names = append(names, ar.Name)
	}
	if _, err := r.DB.ExecContext(ctx,
		`DELETE FROM auto_responders WHERE campaign_id=$1 AND NOT (name = ANY($2))`,
		campaignID, pq.Array(names)); err != nil {
		return fmt.Errorf("failed to prune responders: %w", err)
	}

	for _, ar := range responders {
		ar.CampaignID = campaignID
		err := r.DB.QueryRowContext(ctx, `
            INSERT INTO auto_responders (campaign_id, name, frequency)
            VALUES ($1, $2, $3)
            ON CONFLICT (campaign_id, name) DO UPDATE SET frequency=EXCLUDED.frequency
            RETURNING id, created_at
        `, campaignID, ar.Name, string(ar.Frequency)).Scan(&ar.ID, &ar.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert responder %q: %w", ar.Name, err)
		}

		if _, err := r.DB.ExecContext(ctx, `DELETE FROM templates WHERE responder_id=$1`, ar.ID); err != nil {
			return fmt.Errorf("failed to clear templates of responder %q: %w", ar.Name, err)
		}
		for _, t := range ar.Templates {
			t.ResponderID = ar.ID
			err := r.DB.QueryRowContext(ctx, `
                INSERT INTO templates (responder_id, name, body, language, keywords, is_default, position)
                VALUES ($1, $2, $3, $4, $5, $6, $7)
                RETURNING id
            `, ar.ID, t.Name, t.Body, t.Language, pq.Array(t.Keywords), t.IsDefault, t.Position).Scan(&t.ID)
			if err != nil {
				return fmt.Errorf("failed to insert template %q: %w", t.Name, err)
			}
		}
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
