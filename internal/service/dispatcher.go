package service

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/unclebandit/campaign-autoresponder/internal/model"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

// firesOn lists, per responder frequency, the transitions that trigger it.
// Frequencies missing here never fire.
var firesOn = map[model.Frequency][]Transition{
	model.FrequencyFirstTime: {TransitionFirstContact},
}

// Dispatcher turns a contact result into autoresponse jobs.
type Dispatcher struct {
	PublicURL string
}

func NewDispatcher(publicURL string) *Dispatcher {
	return &Dispatcher{PublicURL: strings.TrimRight(publicURL, "/")}
}

// UnsubscribeURL is the link visited to deactivate a subscription.
func (d *Dispatcher) UnsubscribeURL(token string) string {
	return fmt.Sprintf("%s/subscription/%s/unsubscribe", d.PublicURL, url.PathEscape(token))
}

// Plan returns one job per responder of the campaign whose frequency fires
// on contact.Transition. It does not publish anything.
func (d *Dispatcher) Plan(ctx context.Context, repos repository.Repos, campaign *model.Campaign, contact *ContactResult, incoming *model.IncomingMessage) ([]queue.Job, error) {
	var freqs []model.Frequency
	for freq, transitions := range firesOn {
		if slices.Contains(transitions, contact.Transition) {
			freqs = append(freqs, freq)
		}
	}
	if len(freqs) == 0 {
		return nil, nil
	}

	responders, err := repos.Campaigns.ListResponders(ctx, campaign.ID, freqs...)
	if err != nil {
		return nil, fmt.Errorf("list responders of campaign %d: %w", campaign.ID, err)
	}

	unsubscribeURL := d.UnsubscribeURL(contact.Subscription.Token)
	jobs := make([]queue.Job, 0, len(responders))
	for _, r := range responders {
		jobs = append(jobs, queue.AutoresponseJob{
			From:            campaign.ContactEmail,
			To:              contact.Subscriber.Email,
			IncomingSubject: incoming.Subject,
			IncomingBody:    incoming.Body,
			CampaignID:      campaign.ID,
			ResponderID:     r.ID,
			UnsubscribeURL:  unsubscribeURL,
		}.ToJob())
	}
	return jobs, nil
}
