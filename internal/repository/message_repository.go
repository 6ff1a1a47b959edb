package repository

import (
	"context"

	"github.com/lib/pq"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

type MessageRepositoryInterface interface {
	CreateIncoming(ctx context.Context, msg *model.IncomingMessage) error
	CreateOutgoing(ctx context.Context, msg *model.OutgoingMessage) error
}

type MessageRepository struct {
	DB DBTX
}

// CreateIncoming inserts the message and fills in ID and CreatedAt.
func (r *MessageRepository) CreateIncoming(ctx context.Context, msg *model.IncomingMessage) error {
	query := `
        INSERT INTO incoming_messages
        (campaign_id, from_address, to_address, subject, body, body_html, headers, message_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		msg.CampaignID,
		msg.FromAddress,
		msg.ToAddress,
		msg.Subject,
		msg.Body,
		msg.BodyHTML,
		msg.Headers,
		msg.MessageID,
	).Scan(&msg.ID, &msg.CreatedAt)
}

// CreateOutgoing inserts the message and fills in ID and CreatedAt.
func (r *MessageRepository) CreateOutgoing(ctx context.Context, msg *model.OutgoingMessage) error {
	query := `
        INSERT INTO outgoing_messages
        (campaign_id, responder_id, to_addresses, subject, message_id, provider)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	return r.DB.QueryRowContext(ctx, query,
		msg.CampaignID,
		msg.ResponderID,
		pq.Array(msg.ToAddresses),
		msg.Subject,
		msg.MessageID,
		msg.Provider,
	).Scan(&msg.ID, &msg.CreatedAt)
}

var _ MessageRepositoryInterface = (*MessageRepository)(nil)
