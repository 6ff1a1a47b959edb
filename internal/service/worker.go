package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/mailer"
	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// AutoresponseWorker executes send_autoresponse jobs.
type AutoresponseWorker struct {
	Store    repository.Store
	Composer *Composer
	Provider mailer.Provider
	logger   *zap.Logger
}

// NewAutoresponseWorker creates a worker that sends autoresponses for queued jobs.
func NewAutoresponseWorker(store repository.Store, composer *Composer, provider mailer.Provider, logger *zap.Logger) *AutoresponseWorker {
	return &AutoresponseWorker{
		Store:    store,
		Composer: composer,
		Provider: provider,
		logger:   logger,
	}
}

// Subscribe registers the worker on q.
func (w *AutoresponseWorker) Subscribe(q queue.Queue) error {
	return q.Subscribe(queue.TaskSendAutoresponse, w.Handle)
}

// Handle composes and sends one reply, then records it. Payload errors and
// missing responders are permanent; provider errors keep the provider's
// classification.
func (w *AutoresponseWorker) Handle(ctx context.Context, job queue.Job) error {
	req, err := queue.ParseAutoresponseJob(job)
	if err != nil {
		return err
	}
	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.Int64("campaign_id", req.CampaignID),
		zap.Int64("responder_id", req.ResponderID))

	subject, body, err := w.Composer.Compose(ctx, req.ResponderID, req.IncomingSubject, req.IncomingBody, req.UnsubscribeURL)
	if err != nil {
		if appErrors.IsPermanent(err) {
			log.Warn("dropping autoresponse", zap.Error(err))
		}
		return fmt.Errorf("compose autoresponse: %w", err)
	}

	provider := w.Provider.Name()
	out := &mailer.OutboundMessage{
		From:    req.From,
		To:      []string{req.To},
		Subject: subject,
		Body:    body,
	}
	messageID, err := w.Provider.Send(ctx, out)
	if err != nil {
		result := "error"
		if appErrors.IsPermanent(err) {
			result = "rejected"
		}
		metrics.MailSendsTotal.WithLabelValues(provider, result).Inc()
		log.Warn("autoresponse send failed", zap.String("provider", provider), zap.Error(err))
		return fmt.Errorf("send autoresponse: %w", err)
	}
	metrics.MailSendsTotal.WithLabelValues(provider, "success").Inc()

	responderID := req.ResponderID
	record := &model.OutgoingMessage{
		CampaignID:  req.CampaignID,
		ResponderID: &responderID,
		ToAddresses: out.To,
		Subject:     subject,
		MessageID:   messageID,
		Provider:    provider,
	}
	if err := w.Store.Repos().Messages.CreateOutgoing(ctx, record); err != nil {
		// The reply is already out; a retry would send it twice.
		log.Error("failed to record sent autoresponse", zap.String("message_id", messageID), zap.Error(err))
		return appErrors.Permanent(fmt.Errorf("record outgoing message: %w", err))
	}

	log.Info("autoresponse sent", zap.String("provider", provider), zap.String("message_id", messageID))
	return nil
}
