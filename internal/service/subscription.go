package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/metrics"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// Transition is the outcome of a subscription state change.
type Transition string

const (
	TransitionNone         Transition = "none"
	TransitionFirstContact Transition = "first_contact"
	TransitionReactivated  Transition = "reactivated"
	TransitionDeactivated  Transition = "deactivated"
)

type ContactResult struct {
	Subscriber   *model.Subscriber
	Subscription *model.Subscription
	Transition   Transition
}

type UnsubscribeResult struct {
	Campaign   *model.Campaign
	Transition Transition
	Message    string
}

// SubscriptionService owns the subscription state machine. Only the creation
// of a subscription is a first contact; reactivation is not.
type SubscriptionService struct {
	Store  repository.Store
	Tokens *TokenGenerator
	logger *zap.Logger
}

func NewSubscriptionService(store repository.Store, tokens *TokenGenerator, logger *zap.Logger) *SubscriptionService {
	return &SubscriptionService{Store: store, Tokens: tokens, logger: logger}
}

// RecordContact applies an inbound message from email to the subscription
// state. repos must belong to the caller's transaction.
func (s *SubscriptionService) RecordContact(ctx context.Context, repos repository.Repos, campaign *model.Campaign, email string) (*ContactResult, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("record contact: empty sender address")
	}

	subscriber, _, err := repos.Subscribers.GetOrCreate(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get or create subscriber: %w", err)
	}

	sub, created, err := repos.Subscriptions.GetOrCreate(ctx, &model.Subscription{
		SubscriberID: subscriber.ID,
		CampaignID:   campaign.ID,
		Token:        s.Tokens.Token(campaign.ID, subscriber.ID),
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create subscription: %w", err)
	}

	result := &ContactResult{Subscriber: subscriber, Subscription: sub, Transition: TransitionNone}
	switch {
	case created:
		result.Transition = TransitionFirstContact
	case !sub.Active:
		if err := repos.Subscriptions.SetActive(ctx, sub.ID, true); err != nil {
			return nil, fmt.Errorf("reactivate subscription %d: %w", sub.ID, err)
		}
		sub.Active = true
		result.Transition = TransitionReactivated
	}

	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(result.Transition)).Inc()
	s.logger.Debug("contact recorded",
		zap.String("campaign", campaign.Name),
		zap.Int64("subscriber_id", subscriber.ID),
		zap.String("transition", string(result.Transition)))
	return result, nil
}

// Unsubscribe deactivates the subscription identified by token. Repeated
// calls succeed with TransitionNone and the same message.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, token string) (*UnsubscribeResult, error) {
	var result *UnsubscribeResult
	err := s.Store.WithTx(ctx, func(repos repository.Repos) error {
		sub, changed, err := repos.Subscriptions.DeactivateByToken(ctx, token)
		if err != nil {
			return err
		}
		campaign, err := repos.Campaigns.GetByID(ctx, sub.CampaignID)
		if err != nil {
			return err
		}

		result = &UnsubscribeResult{
			Campaign:   campaign,
			Transition: TransitionNone,
			Message:    UnsubscribeMessage(campaign),
		}
		if changed {
			result.Transition = TransitionDeactivated
		}
		return nil
	})
	if err != nil {
		var notFound *appErrors.ErrSubscriptionNotFound
		if errors.As(err, &notFound) {
			metrics.UnsubscribesTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.UnsubscribesTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.UnsubscribesTotal.WithLabelValues(string(result.Transition)).Inc()
	if result.Transition == TransitionDeactivated {
		metrics.SubscriptionTransitionsTotal.WithLabelValues(string(TransitionDeactivated)).Inc()
		s.logger.Info("subscription deactivated", zap.String("campaign", result.Campaign.Name))
	}
	return result, nil
}

// UnsubscribeMessage is the campaign's custom confirmation, or a default
// sentence naming the campaign.
func UnsubscribeMessage(c *model.Campaign) string {
	if strings.TrimSpace(c.UnsubscribeMsg) != "" {
		return c.UnsubscribeMsg
	}
	title := c.Title
	if title == "" {
		title = c.Name
	}
	return fmt.Sprintf("You have been unsubscribed from `%s` campaign.", title)
}
