// internal/service/inbox_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/archive"
	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/mailer"
	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// InboxService processes inbound webhook payloads.
type InboxService struct {
	Store         repository.Store
	Provider      mailer.Provider
	Resolver      *CampaignResolver
	Subscriptions *SubscriptionService
	Dispatcher    *Dispatcher
	Queue         queue.Queue
	Archiver      archive.Archiver
	logger        *zap.Logger
}

// ReceiveResult describes what one inbound message changed.
type ReceiveResult struct {
	Campaign   *model.Campaign
	Message    *model.IncomingMessage
	Transition Transition
	Jobs       []queue.Job
}

func NewInboxService(
	store repository.Store,
	provider mailer.Provider,
	subscriptions *SubscriptionService,
	dispatcher *Dispatcher,
	q queue.Queue,
	archiver archive.Archiver,
	logger *zap.Logger,
) *InboxService {
	return &InboxService{
		Store:         store,
		Provider:      provider,
		Resolver:      &CampaignResolver{},
		Subscriptions: subscriptions,
		Dispatcher:    dispatcher,
		Queue:         q,
		Archiver:      archiver,
		logger:        logger,
	}
}

// Receive parses payload, records the message and the subscription change,
// and publishes the resulting jobs once the transaction has committed.
// Unknown campaigns yield appErrors.ErrCampaignNotFound and malformed
// payloads appErrors.ErrMalformedPayload; neither persists anything.
func (s *InboxService) Receive(ctx context.Context, payload []byte) (result *ReceiveResult, err error) {
	start := time.Now()
	defer func() {
		outcome := inboundOutcome(err)
		metrics.InboundMessagesTotal.WithLabelValues(outcome).Inc()
		metrics.InboundDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	msg, err := s.Provider.Receive(ctx, payload)
	if err != nil {
		return nil, err
	}

	campaign, err := s.Resolver.Resolve(ctx, s.Store.Repos().Campaigns, msg.To)
	if err != nil {
		return nil, err
	}

	result = &ReceiveResult{Campaign: campaign}
	err = s.Store.WithTx(ctx, func(repos repository.Repos) error {
		incoming := &model.IncomingMessage{
			CampaignID:  campaign.ID,
			FromAddress: msg.From,
			ToAddress:   msg.To,
			Subject:     msg.Subject,
			Body:        msg.Body,
			BodyHTML:    msg.BodyHTML,
			Headers:     msg.Headers,
			MessageID:   msg.MessageID,
		}
		if err := repos.Messages.CreateIncoming(ctx, incoming); err != nil {
			return fmt.Errorf("store incoming message: %w", err)
		}

		contact, err := s.Subscriptions.RecordContact(ctx, repos, campaign, msg.From)
		if err != nil {
			return err
		}

		jobs, err := s.Dispatcher.Plan(ctx, repos, campaign, contact, incoming)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			entry := &model.OutboxEntry{JobID: job.ID, Task: job.Task, Args: job.Args}
			if err := repos.Outbox.Add(ctx, entry); err != nil {
				return fmt.Errorf("record job %s: %w", job.ID, err)
			}
		}

		result.Message = incoming
		result.Transition = contact.Transition
		result.Jobs = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, result.Jobs)
	s.archive(ctx, payload)

	s.logger.Info("inbound message processed",
		zap.String("campaign", campaign.Name),
		zap.String("from", msg.From),
		zap.String("transition", string(result.Transition)),
		zap.Int("jobs", len(result.Jobs)))
	return result, nil
}

// publish hands committed jobs to the queue. A job that cannot be published
// keeps its outbox row and is picked up by the relay.
func (s *InboxService) publish(ctx context.Context, jobs []queue.Job) {
	for _, job := range jobs {
		if err := s.Queue.Publish(ctx, job); err != nil {
			s.logger.Warn("publish failed, leaving job to the outbox relay",
				zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.Store.Repos().Outbox.Delete(ctx, job.ID); err != nil {
			s.logger.Warn("failed to delete outbox entry", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

func (s *InboxService) archive(ctx context.Context, payload []byte) {
	if s.Archiver == nil {
		return
	}
	key, err := s.Archiver.Store(ctx, s.Provider.Name(), payload)
	if err != nil {
		s.logger.Warn("failed to archive inbound payload", zap.Error(err))
		return
	}
	if key != "" {
		s.logger.Debug("inbound payload archived", zap.String("key", key))
	}
}

func inboundOutcome(err error) string {
	var notFound *appErrors.ErrCampaignNotFound
	var malformed *appErrors.ErrMalformedPayload
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &notFound):
		return "unknown_campaign"
	case errors.As(err, &malformed):
		return "malformed"
	default:
		return "error"
	}
}
