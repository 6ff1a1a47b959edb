package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	appErrors "github.com/unclebandit/campaign-autoresponder/internal/errors"
	"github.com/unclebandit/campaign-autoresponder/internal/model"
)

// MemoryStore keeps everything in process memory. It enforces the same
// uniqueness rules as the Postgres schema. Transactions work on a copy of the
// data that replaces the live copy only on commit, and are serialised.
type MemoryStore struct {
	mu   sync.Mutex
	data *memoryData
}

type memoryData struct {
	nextID        int64
	campaigns     map[int64]model.Campaign
	responders    map[int64]model.AutoResponder
	subscribers   map[int64]model.Subscriber
	subscriptions map[int64]model.Subscription
	incoming      []model.IncomingMessage
	outgoing      []model.OutgoingMessage
	outbox        map[string]model.OutboxEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memoryData{
		campaigns:     map[int64]model.Campaign{},
		responders:    map[int64]model.AutoResponder{},
		subscribers:   map[int64]model.Subscriber{},
		subscriptions: map[int64]model.Subscription{},
		outbox:        map[string]model.OutboxEntry{},
	}}
}

func (d *memoryData) id() int64 {
	d.nextID++
	return d.nextID
}

func (d *memoryData) clone() *memoryData {
	c := &memoryData{
		nextID:        d.nextID,
		campaigns:     make(map[int64]model.Campaign, len(d.campaigns)),
		responders:    make(map[int64]model.AutoResponder, len(d.responders)),
		subscribers:   make(map[int64]model.Subscriber, len(d.subscribers)),
		subscriptions: make(map[int64]model.Subscription, len(d.subscriptions)),
		incoming:      slices.Clone(d.incoming),
		outgoing:      slices.Clone(d.outgoing),
		outbox:        make(map[string]model.OutboxEntry, len(d.outbox)),
	}
	for k, v := range d.campaigns {
		c.campaigns[k] = v
	}
	for k, v := range d.responders {
		c.responders[k] = v
	}
	for k, v := range d.subscribers {
		c.subscribers[k] = v
	}
	for k, v := range d.subscriptions {
		c.subscriptions[k] = v
	}
	for k, v := range d.outbox {
		c.outbox[k] = v
	}
	return c
}

// memoryView runs repository calls either against the live data under the
// store lock, or against a transaction's private copy.
type memoryView struct {
	store *MemoryStore
	tx    *memoryData
}

func (v *memoryView) do(fn func(d *memoryData) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.data)
}

func (s *MemoryStore) reposFor(v *memoryView) Repos {
	return Repos{
		Campaigns:     &memoryCampaigns{v},
		Subscribers:   &memorySubscribers{v},
		Subscriptions: &memorySubscriptions{v},
		Messages:      &memoryMessages{v},
		Outbox:        &memoryOutbox{v},
	}
}

func (s *MemoryStore) Repos() Repos {
	return s.reposFor(&memoryView{store: s})
}

// WithTx must not be nested, and fn must not use repositories obtained from
// Repos() while it runs.
func (s *MemoryStore) WithTx(ctx context.Context, fn func(Repos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.data.clone()
	if err := fn(s.reposFor(&memoryView{store: s, tx: tx})); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// Snapshot accessors used by tests and the dev server.

func (s *MemoryStore) Subscribers() []model.Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.subscribers, func(v model.Subscriber) int64 { return v.ID })
}

func (s *MemoryStore) Subscriptions() []model.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.subscriptions, func(v model.Subscription) int64 { return v.ID })
}

func (s *MemoryStore) IncomingMessages() []model.IncomingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.incoming)
}

func (s *MemoryStore) OutgoingMessages() []model.OutgoingMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.outgoing)
}

func (s *MemoryStore) OutboxEntries() []model.OutboxEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.data.outbox, func(v model.OutboxEntry) int64 { return v.ID })
}

// DeleteResponder removes a responder, as an administrator would.
func (s *MemoryStore) DeleteResponder(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.responders, id)
}

func sortedValues[K comparable, V any](m map[K]V, id func(V) int64) []V {
	out := make([]V, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return id(out[i]) < id(out[j]) })
	return out
}

func copyResponder(ar model.AutoResponder, withTemplates bool) *model.AutoResponder {
	out := ar
	out.Templates = nil
	if withTemplates {
		for _, t := range ar.Templates {
			tc := *t
			tc.Keywords = slices.Clone(t.Keywords)
			out.Templates = append(out.Templates, &tc)
		}
	}
	return &out
}

type memoryCampaigns struct{ v *memoryView }

func (r *memoryCampaigns) GetByName(ctx context.Context, name string) (*model.Campaign, error) {
	var out *model.Campaign
	err := r.v.do(func(d *memoryData) error {
		for _, c := range d.campaigns {
			if c.Name == name {
				cc := c
				out = &cc
				return nil
			}
		}
		return appErrors.NewCampaignNotFound(name)
	})
	return out, err
}

func (r *memoryCampaigns) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var out *model.Campaign
	err := r.v.do(func(d *memoryData) error {
		c, ok := d.campaigns[id]
		if !ok {
			return appErrors.NewCampaignIDNotFound(id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r *memoryCampaigns) ListResponders(ctx context.Context, campaignID int64, freqs ...model.Frequency) ([]*model.AutoResponder, error) {
	out := []*model.AutoResponder{}
	err := r.v.do(func(d *memoryData) error {
		for _, ar := range sortedValues(d.responders, func(v model.AutoResponder) int64 { return v.ID }) {
			if ar.CampaignID == campaignID && slices.Contains(freqs, ar.Frequency) {
				out = append(out, copyResponder(ar, false))
			}
		}
		return nil
	})
	return out, err
}

func (r *memoryCampaigns) GetResponder(ctx context.Context, id int64) (*model.AutoResponder, error) {
	var out *model.AutoResponder
	err := r.v.do(func(d *memoryData) error {
		ar, ok := d.responders[id]
		if !ok {
			return appErrors.NewResponderNotFound(id)
		}
		out = copyResponder(ar, true)
		return nil
	})
	return out, err
}

func (r *memoryCampaigns) UpsertCampaign(ctx context.Context, c *model.Campaign) error {
	return r.v.do(func(d *memoryData) error {
		now := time.Now()
		for id, existing := range d.campaigns {
			if existing.Name == c.Name {
				c.ID = id
				c.CreatedAt = existing.CreatedAt
				c.UpdatedAt = &now
				d.campaigns[id] = *c
				return nil
			}
		}
		c.ID = d.id()
		c.CreatedAt = now
		c.UpdatedAt = nil
		d.campaigns[c.ID] = *c
		return nil
	})
}

func (r *memoryCampaigns) ReplaceResponders(ctx context.Context, campaignID int64, responders []*model.AutoResponder) error {
	return r.v.do(func(d *memoryData) error {
		if _, ok := d.campaigns[campaignID]; !ok {
			return appErrors.NewCampaignIDNotFound(campaignID)
		}

		existing := map[string]model.AutoResponder{}
		for id, ar := range d.responders {
			if ar.CampaignID == campaignID {
				existing[ar.Name] = ar
				delete(d.responders, id)
			}
		}

		seen := map[string]bool{}
		for _, ar := range responders {
			if seen[ar.Name] {
				return fmt.Errorf("duplicate responder name %q", ar.Name)
			}
			seen[ar.Name] = true

			ar.CampaignID = campaignID
			if prev, ok := existing[ar.Name]; ok {
				ar.ID = prev.ID
				ar.CreatedAt = prev.CreatedAt
			} else {
				ar.ID = d.id()
				ar.CreatedAt = time.Now()
			}
			for _, t := range ar.Templates {
				t.ID = d.id()
				t.ResponderID = ar.ID
			}
			stored := copyResponder(*ar, true)
			d.responders[ar.ID] = *stored
		}
		return nil
	})
}

type memorySubscribers struct{ v *memoryView }

func (r *memorySubscribers) GetOrCreate(ctx context.Context, email string) (*model.Subscriber, bool, error) {
	var out *model.Subscriber
	var created bool
	err := r.v.do(func(d *memoryData) error {
		for _, s := range d.subscribers {
			if s.Email == email {
				sc := s
				out = &sc
				return nil
			}
		}
		s := model.Subscriber{ID: d.id(), Email: email, CreatedAt: time.Now()}
		d.subscribers[s.ID] = s
		out = &s
		created = true
		return nil
	})
	return out, created, err
}

func (r *memorySubscribers) GetByEmail(ctx context.Context, email string) (*model.Subscriber, error) {
	var out *model.Subscriber
	err := r.v.do(func(d *memoryData) error {
		for _, s := range d.subscribers {
			if s.Email == email {
				sc := s
				out = &sc
				return nil
			}
		}
		return nil
	})
	return out, err
}

type memorySubscriptions struct{ v *memoryView }

func (r *memorySubscriptions) GetOrCreate(ctx context.Context, s *model.Subscription) (*model.Subscription, bool, error) {
	var out *model.Subscription
	var created bool
	err := r.v.do(func(d *memoryData) error {
		for _, existing := range d.subscriptions {
			if existing.SubscriberID == s.SubscriberID && existing.CampaignID == s.CampaignID {
				ec := existing
				out = &ec
				return nil
			}
		}
		for _, existing := range d.subscriptions {
			if existing.Token == s.Token {
				return fmt.Errorf("subscription token collision for subscriber %d campaign %d", s.SubscriberID, s.CampaignID)
			}
		}
		sub := *s
		sub.ID = d.id()
		sub.CreatedAt = time.Now()
		sub.UpdatedAt = nil
		d.subscriptions[sub.ID] = sub
		out = &sub
		created = true
		return nil
	})
	return out, created, err
}

func (r *memorySubscriptions) Get(ctx context.Context, subscriberID, campaignID int64) (*model.Subscription, error) {
	var out *model.Subscription
	err := r.v.do(func(d *memoryData) error {
		for _, s := range d.subscriptions {
			if s.SubscriberID == subscriberID && s.CampaignID == campaignID {
				sc := s
				out = &sc
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *memorySubscriptions) GetByToken(ctx context.Context, token string) (*model.Subscription, error) {
	var out *model.Subscription
	err := r.v.do(func(d *memoryData) error {
		for _, s := range d.subscriptions {
			if s.Token == token {
				sc := s
				out = &sc
				return nil
			}
		}
		return appErrors.NewSubscriptionNotFound(token)
	})
	return out, err
}

func (r *memorySubscriptions) SetActive(ctx context.Context, id int64, active bool) error {
	return r.v.do(func(d *memoryData) error {
		s, ok := d.subscriptions[id]
		if !ok {
			return fmt.Errorf("subscription %d not found", id)
		}
		now := time.Now()
		s.Active = active
		s.UpdatedAt = &now
		d.subscriptions[id] = s
		return nil
	})
}

func (r *memorySubscriptions) DeactivateByToken(ctx context.Context, token string) (*model.Subscription, bool, error) {
	var out *model.Subscription
	var changed bool
	err := r.v.do(func(d *memoryData) error {
		for id, s := range d.subscriptions {
			if s.Token != token {
				continue
			}
			if s.Active {
				now := time.Now()
				s.Active = false
				s.UpdatedAt = &now
				d.subscriptions[id] = s
				changed = true
			}
			out = &s
			return nil
		}
		return appErrors.NewSubscriptionNotFound(token)
	})
	return out, changed, err
}

type memoryMessages struct{ v *memoryView }

func (r *memoryMessages) CreateIncoming(ctx context.Context, msg *model.IncomingMessage) error {
	return r.v.do(func(d *memoryData) error {
		if _, ok := d.campaigns[msg.CampaignID]; !ok {
			return appErrors.NewCampaignIDNotFound(msg.CampaignID)
		}
		msg.ID = d.id()
		msg.CreatedAt = time.Now()
		d.incoming = append(d.incoming, *msg)
		return nil
	})
}

func (r *memoryMessages) CreateOutgoing(ctx context.Context, msg *model.OutgoingMessage) error {
	return r.v.do(func(d *memoryData) error {
		msg.ID = d.id()
		msg.CreatedAt = time.Now()
		stored := *msg
		stored.ToAddresses = slices.Clone(msg.ToAddresses)
		d.outgoing = append(d.outgoing, stored)
		return nil
	})
}

type memoryOutbox struct{ v *memoryView }

func (r *memoryOutbox) Add(ctx context.Context, e *model.OutboxEntry) error {
	return r.v.do(func(d *memoryData) error {
		if _, ok := d.outbox[e.JobID]; ok {
			return nil
		}
		e.ID = d.id()
		e.CreatedAt = time.Now()
		d.outbox[e.JobID] = *e
		return nil
	})
}

func (r *memoryOutbox) Delete(ctx context.Context, jobID string) error {
	return r.v.do(func(d *memoryData) error {
		delete(d.outbox, jobID)
		return nil
	})
}

func (r *memoryOutbox) ClaimStale(ctx context.Context, olderThan time.Time, limit int) ([]*model.OutboxEntry, error) {
	out := []*model.OutboxEntry{}
	err := r.v.do(func(d *memoryData) error {
		entries := sortedValues(d.outbox, func(v model.OutboxEntry) int64 { return v.ID })
		for _, e := range entries {
			if len(out) >= limit {
				break
			}
			if e.CreatedAt.Before(olderThan) {
				ec := e
				out = append(out, &ec)
			}
		}
		return nil
	})
	return out, err
}

var _ Store = (*MemoryStore)(nil)
