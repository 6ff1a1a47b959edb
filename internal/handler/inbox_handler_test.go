package handler_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	"github.com/unclebandit/campaign-autoresponder/internal/controller"
	"github.com/unclebandit/campaign-autoresponder/internal/handler"
	"github.com/unclebandit/campaign-autoresponder/internal/mailer"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

const apiToken = "webhook-secret"

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
}

func (q *recordingQueue) Publish(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}
func (q *recordingQueue) Subscribe(task string, h queue.Handler) error { return nil }
func (q *recordingQueue) Run(ctx context.Context) error                  { return nil }
func (q *recordingQueue) Close() error                                   { return nil }

type env struct {
	router http.Handler
	store  *repository.MemoryStore
	queue  *recordingQueue
}

func newEnv(t *testing.T, token string, maxBody int64) *env {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()

	campaign := &model.Campaign{Name: "news", Title: "News", ContactEmail: "hello@news.example"}
	require.NoError(t, store.Repos().Campaigns.UpsertCampaign(ctx, campaign))
	require.NoError(t, store.Repos().Campaigns.ReplaceResponders(ctx, campaign.ID, []*model.AutoResponder{
		{Name: "welcome", Frequency: model.FrequencyFirstTime, Templates: []*model.Template{{Body: "Hi {unsubscribe}"}}},
	}))

	provider, err := mailer.NewPostalProvider(config.PostalConfig{BaseURL: "http://postal.invalid"})
	require.NoError(t, err)

	q := &recordingQueue{}
	subs := service.NewSubscriptionService(store, service.NewTokenGenerator("s"), logger)
	inbox := service.NewInboxService(store, provider, subs, service.NewDispatcher("https://mail.example"), q, nil, logger)

	router := handler.NewRouter(
		handler.NewInboxHandler(inbox, token, maxBody, logger),
		controller.NewSubscriptionController(subs, logger),
		config.MetricsConfig{Enabled: true, Path: "/metrics"},
		logger,
	)
	return &env{router: router, store: store, queue: q}
}

func (e *env) post(path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(rec, req)
	return rec
}

func postalPayload(to string) string {
	return `{"mail_from":"a@x.com","rcpt_to":"` + to + `","subject":"Hello","plain_body":"hi","message_id":"<1@x.com>"}`
}

func TestInboxAcceptsKnownCampaign(t *testing.T) {
	e := newEnv(t, apiToken, 1<<20)

	rec := e.post("/api/1/inbox/"+apiToken, postalPayload("news-tag@y.com"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))

	assert.Len(t, e.store.IncomingMessages(), 1)
	assert.Len(t, e.store.Subscriptions(), 1)
	assert.Len(t, e.queue.jobs, 1)
}

func TestInboxRejectsWrongToken(t *testing.T) {
	e := newEnv(t, apiToken, 1<<20)

	for _, path := range []string{"/api/1/inbox/wrong", "/api/1/inbox/" + apiToken + "x"} {
		rec := e.post(path, postalPayload("news@y.com"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Empty(t, e.store.IncomingMessages())
}

func TestInboxEmptyConfiguredTokenNeverMatches(t *testing.T) {
	e := newEnv(t, "", 1<<20)

	rec := e.post("/api/1/inbox/anything", postalPayload("news@y.com"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestInboxUnknownCampaignIsUnauthorized(t *testing.T) {
	e := newEnv(t, apiToken, 1<<20)

	rec := e.post("/api/1/inbox/"+apiToken, postalPayload("sports@y.com"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, e.store.IncomingMessages())
	assert.Empty(t, e.store.Subscribers())
}

func TestInboxMalformedPayload(t *testing.T) {
	e := newEnv(t, apiToken, 1<<20)

	rec := e.post("/api/1/inbox/"+apiToken, `{"rcpt_to":"news@y.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, e.store.IncomingMessages())
}

func TestInboxBodyLimit(t *testing.T) {
	e := newEnv(t, apiToken, 16)

	rec := e.post("/api/1/inbox/"+apiToken, postalPayload("news@y.com"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type failingReceiver struct{}

func (failingReceiver) Receive(ctx context.Context, payload []byte) (*service.ReceiveResult, error) {
	return nil, errors.New("database down")
}

func TestInboxInternalError(t *testing.T) {
	h := handler.NewInboxHandler(failingReceiver{}, apiToken, 0, zap.NewNop())
	router := handler.NewRouter(h, controller.NewSubscriptionController(nil, zap.NewNop()), config.MetricsConfig{}, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/1/inbox/"+apiToken, strings.NewReader("{}")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouterServesUnsubscribeAndMetrics(t *testing.T) {
	e := newEnv(t, apiToken, 1<<20)
	require.Equal(t, http.StatusOK, e.post("/api/1/inbox/"+apiToken, postalPayload("news@y.com")).Code)

	token := e.store.Subscriptions()[0].Token
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/subscription/"+token+"/unsubscribe", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You have been unsubscribed from `News` campaign.", rec.Body.String())

	rec = httptest.NewRecorder()
	e.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autoresponder_inbound_messages_total")
}
