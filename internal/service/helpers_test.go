package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/mailer"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

// recordingQueue keeps published jobs instead of running them.
type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *recordingQueue) Publish(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *recordingQueue) Subscribe(task string, handler queue.Handler) error { return nil }

func (q *recordingQueue) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (q *recordingQueue) Close() error { return nil }

func (q *recordingQueue) Jobs() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Job(nil), q.jobs...)
}

func (q *recordingQueue) failWith(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

// fakeProvider reads InboundMessage JSON and records sends.
type fakeProvider struct {
	mu      sync.Mutex
	sent    []*mailer.OutboundMessage
	sendErr error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Receive(ctx context.Context, payload []byte) (*mailer.InboundMessage, error) {
	var msg mailer.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, appErrors.NewMalformedPayload("fake", err)
	}
	if msg.From == "" || msg.To == "" {
		return nil, appErrors.NewMalformedPayload("fake", errors.New("missing sender or recipient"))
	}
	return &msg, nil
}

func (p *fakeProvider) Send(ctx context.Context, msg *mailer.OutboundMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return "", p.sendErr
	}
	p.sent = append(p.sent, msg)
	return fmt.Sprintf("<%d@fake.example>", len(p.sent)), nil
}

func (p *fakeProvider) Sent() []*mailer.OutboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*mailer.OutboundMessage(nil), p.sent...)
}

type fixture struct {
	store    *repository.MemoryStore
	queue    *recordingQueue
	provider *fakeProvider
	tokens   *service.TokenGenerator
	inbox    *service.InboxService
	campaign *model.Campaign
	welcome  *model.AutoResponder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()

	campaign := &model.Campaign{Name: "news", Title: "Daily News", ContactEmail: "hello@news.example"}
	require.NoError(t, store.Repos().Campaigns.UpsertCampaign(ctx, campaign))

	welcome := &model.AutoResponder{
		Name:      "welcome",
		Frequency: model.FrequencyFirstTime,
		Templates: []*model.Template{
			{Name: "en", Body: "Welcome! Unsubscribe: {unsubscribe}", Language: "en", IsDefault: true},
			{Name: "ru", Body: "Добро пожаловать! {unsubscribe}", Language: "ru", Position: 1},
		},
	}
	weekly := &model.AutoResponder{
		Name:      "weekly",
		Frequency: model.Frequency("weekly"),
		Templates: []*model.Template{{Body: "Weekly {unsubscribe}"}},
	}
	require.NoError(t, store.Repos().Campaigns.ReplaceResponders(ctx, campaign.ID, []*model.AutoResponder{welcome, weekly}))

	logger := zap.NewNop()
	q := &recordingQueue{}
	provider := &fakeProvider{}
	tokens := service.NewTokenGenerator("test-secret")
	inbox := service.NewInboxService(
		store,
		provider,
		service.NewSubscriptionService(store, tokens, logger),
		service.NewDispatcher("https://mail.example/"),
		q,
		nil,
		logger,
	)

	return &fixture{
		store:    store,
		queue:    q,
		provider: provider,
		tokens:   tokens,
		inbox:    inbox,
		campaign: campaign,
		welcome:  welcome,
	}
}

func inboundPayload(t *testing.T, from, to, subject, body string) []byte {
	t.Helper()
	data, err := json.Marshal(mailer.InboundMessage{From: from, To: to, Subject: subject, Body: body, MessageID: "<in@x.com>"})
	require.NoError(t, err)
	return data
}
