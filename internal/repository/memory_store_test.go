package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

func seedCampaign(t *testing.T, s Store) *model.Campaign {
	t.Helper()
	ctx := context.Background()
	c := &model.Campaign{Name: "news", Title: "News", ContactEmail: "hello@news.example"}
	require.NoError(t, s.Repos().Campaigns.UpsertCampaign(ctx, c))
	require.NoError(t, s.Repos().Campaigns.ReplaceResponders(ctx, c.ID, []*model.AutoResponder{
		{Name: "welcome", Frequency: model.FrequencyFirstTime, Templates: []*model.Template{{Body: "Welcome {unsubscribe}", IsDefault: true}}},
		{Name: "weekly", Frequency: model.Frequency("weekly")},
	}))
	return c
}

func TestMemoryCampaignLookup(t *testing.T) {
	s := NewMemoryStore()
	c := seedCampaign(t, s)
	ctx := context.Background()

	got, err := s.Repos().Campaigns.GetByName(ctx, "news")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	_, err = s.Repos().Campaigns.GetByName(ctx, "News")
	var notFound *appErrors.ErrCampaignNotFound
	assert.ErrorAs(t, err, &notFound)

	responders, err := s.Repos().Campaigns.ListResponders(ctx, c.ID, model.FrequencyFirstTime)
	require.NoError(t, err)
	require.Len(t, responders, 1)
	assert.Equal(t, "welcome", responders[0].Name)
	assert.Empty(t, responders[0].Templates)

	full, err := s.Repos().Campaigns.GetResponder(ctx, responders[0].ID)
	require.NoError(t, err)
	require.Len(t, full.Templates, 1)
	assert.Equal(t, "Welcome {unsubscribe}", full.Templates[0].Body)

	_, err = s.Repos().Campaigns.GetResponder(ctx, 9999)
	assert.True(t, appErrors.IsPermanent(err))
}

func TestMemoryReseedKeepsResponderIDs(t *testing.T) {
	s := NewMemoryStore()
	c := seedCampaign(t, s)
	ctx := context.Background()

	before, err := s.Repos().Campaigns.ListResponders(ctx, c.ID, model.FrequencyFirstTime)
	require.NoError(t, err)

	again := &model.Campaign{Name: "news", Title: "Renamed", ContactEmail: "hello@news.example"}
	require.NoError(t, s.Repos().Campaigns.UpsertCampaign(ctx, again))
	assert.Equal(t, c.ID, again.ID)
	require.NoError(t, s.Repos().Campaigns.ReplaceResponders(ctx, c.ID, []*model.AutoResponder{
		{Name: "welcome", Frequency: model.FrequencyFirstTime},
	}))

	after, err := s.Repos().Campaigns.ListResponders(ctx, c.ID, model.FrequencyFirstTime, "weekly")
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
}

func TestMemorySubscriberGetOrCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, created, err := s.Repos().Subscribers.GetOrCreate(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.Repos().Subscribers.GetOrCreate(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	missing, err := s.Repos().Subscribers.GetByEmail(ctx, "b@x.com")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryConcurrentGetOrCreateCreatesOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var creations atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created, err := s.Repos().Subscribers.GetOrCreate(ctx, "race@x.com")
			assert.NoError(t, err)
			if created {
				creations.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), creations.Load())
	assert.Len(t, s.Subscribers(), 1)
}

func TestMemorySubscriptionLifecycle(t *testing.T) {
	s := NewMemoryStore()
	c := seedCampaign(t, s)
	ctx := context.Background()
	sub, _, err := s.Repos().Subscribers.GetOrCreate(ctx, "a@x.com")
	require.NoError(t, err)

	created, isNew, err := s.Repos().Subscriptions.GetOrCreate(ctx, &model.Subscription{
		SubscriberID: sub.ID, CampaignID: c.ID, Token: "tok", Active: true,
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.True(t, created.Active)

	dup, isNew, err := s.Repos().Subscriptions.GetOrCreate(ctx, &model.Subscription{
		SubscriberID: sub.ID, CampaignID: c.ID, Token: "other", Active: true,
	})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.ID, dup.ID)
	assert.Equal(t, "tok", dup.Token)

	off, changed, err := s.Repos().Subscriptions.DeactivateByToken(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, off.Active)

	off, changed, err = s.Repos().Subscriptions.DeactivateByToken(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, off.Active)

	_, _, err = s.Repos().Subscriptions.DeactivateByToken(ctx, "nope")
	var notFound *appErrors.ErrSubscriptionNotFound
	assert.ErrorAs(t, err, &notFound)

	require.NoError(t, s.Repos().Subscriptions.SetActive(ctx, created.ID, true))
	again, err := s.Repos().Subscriptions.Get(ctx, sub.ID, c.ID)
	require.NoError(t, err)
	assert.True(t, again.Active)
}

func TestMemoryWithTxRollsBack(t *testing.T) {
	s := NewMemoryStore()
	c := seedCampaign(t, s)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(r Repos) error {
		if _, _, err := r.Subscribers.GetOrCreate(ctx, "a@x.com"); err != nil {
			return err
		}
		if err := r.Messages.CreateIncoming(ctx, &model.IncomingMessage{CampaignID: c.ID, FromAddress: "a@x.com"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Subscribers())
	assert.Empty(t, s.IncomingMessages())

	err = s.WithTx(ctx, func(r Repos) error {
		_, _, err := r.Subscribers.GetOrCreate(ctx, "a@x.com")
		return err
	})
	require.NoError(t, err)
	assert.Len(t, s.Subscribers(), 1)
}

func TestMemoryOutbox(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	repo := s.Repos().Outbox

	require.NoError(t, repo.Add(ctx, &model.OutboxEntry{JobID: "j1", Task: "t", Args: map[string]string{"a": "1"}}))
	require.NoError(t, repo.Add(ctx, &model.OutboxEntry{JobID: "j1", Task: "t"}))
	require.NoError(t, repo.Add(ctx, &model.OutboxEntry{JobID: "j2", Task: "t"}))
	assert.Len(t, s.OutboxEntries(), 2)

	none, err := repo.ClaimStale(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	stale, err := repo.ClaimStale(ctx, time.Now().Add(time.Minute), 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "j1", stale[0].JobID)
	assert.Equal(t, "1", stale[0].Args["a"])

	require.NoError(t, repo.Delete(ctx, "j1"))
	assert.Len(t, s.OutboxEntries(), 1)
}
