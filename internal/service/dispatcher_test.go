package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

func TestDispatcherPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := service.NewDispatcher("https://mail.example/")

	contact := &service.ContactResult{
		Subscriber:   &model.Subscriber{ID: 9, Email: "a@x.com"},
		Subscription: &model.Subscription{Token: "abc123"},
		Transition:   service.TransitionFirstContact,
	}
	incoming := &model.IncomingMessage{Subject: "Hello", Body: "Hi there"}

	jobs, err := d.Plan(ctx, f.store.Repos(), f.campaign, contact, incoming)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	req, err := queue.ParseAutoresponseJob(jobs[0])
	require.NoError(t, err)
	assert.Equal(t, queue.AutoresponseJob{
		From:            "hello@news.example",
		To:              "a@x.com",
		IncomingSubject: "Hello",
		IncomingBody:    "Hi there",
		CampaignID:      f.campaign.ID,
		ResponderID:     f.welcome.ID,
		UnsubscribeURL:  "https://mail.example/subscription/abc123/unsubscribe",
	}, req)
}

func TestDispatcherSkipsOtherTransitions(t *testing.T) {
	f := newFixture(t)
	d := service.NewDispatcher("https://mail.example")

	for _, tr := range []service.Transition{service.TransitionNone, service.TransitionReactivated, service.TransitionDeactivated} {
		contact := &service.ContactResult{
			Subscriber:   &model.Subscriber{Email: "a@x.com"},
			Subscription: &model.Subscription{Token: "t"},
			Transition:   tr,
		}
		jobs, err := d.Plan(context.Background(), f.store.Repos(), f.campaign, contact, &model.IncomingMessage{})
		require.NoError(t, err)
		assert.Empty(t, jobs, string(tr))
	}
}

func TestDispatcherOneJobPerResponder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Repos().Campaigns.ReplaceResponders(ctx, f.campaign.ID, []*model.AutoResponder{
		{Name: "welcome", Frequency: model.FrequencyFirstTime},
		{Name: "guide", Frequency: model.FrequencyFirstTime},
		{Name: "weekly", Frequency: model.Frequency("weekly")},
	}))

	contact := &service.ContactResult{
		Subscriber:   &model.Subscriber{Email: "a@x.com"},
		Subscription: &model.Subscription{Token: "t"},
		Transition:   service.TransitionFirstContact,
	}
	jobs, err := service.NewDispatcher("https://m").Plan(ctx, f.store.Repos(), f.campaign, contact, &model.IncomingMessage{})
	require.NoError(t, err)
	assert.Len(t, jobs, 2)
	assert.NotEqual(t, jobs[0].ID, jobs[1].ID)
}
