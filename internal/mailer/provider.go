package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

// InboundMessage is the provider-independent form of a received email.
type InboundMessage struct {
	From      string
	To        string
	Subject   string
	Body      string
	BodyHTML  string
	Headers   model.Headers
	MessageID string
}

// OutboundMessage is a plain-text reply to deliver.
type OutboundMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Provider receives inbound payloads and sends replies through one mail
// service. Receive fails with appErrors.ErrMalformedPayload when the payload
// cannot be parsed. Send returns the provider's message id; failures that a
// retry cannot fix are wrapped with appErrors.Permanent.
type Provider interface {
	Name() string
	Receive(ctx context.Context, payload []byte) (*InboundMessage, error)
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}

// NewProvider builds the provider selected by mail.provider.
func NewProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Provider, error) {
	name := cfg.GetMail().Provider
	logger.Info("mail provider selected", zap.String("provider", name))

	switch name {
	case "postal":
		return NewPostalProvider(cfg.GetPostal())
	case "ses":
		return NewSESProvider(ctx, cfg.GetSES())
	case "smtp":
		return NewSMTPProvider(cfg.GetSMTP()), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", name)
	}
}
