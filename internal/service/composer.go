package service

import (
	"context"
	"fmt"

	"github.com/unclebandit/campaign-autoresponder/internal/repository"
)

const unsubscribePlaceholder = "unsubscribe"

// Composer renders the reply for a responder.
type Composer struct {
	Store repository.Store
}

func NewComposer(store repository.Store) *Composer {
	return &Composer{Store: store}
}

// Compose returns the reply subject and body. A deleted responder or one
// without templates yields a permanent error.
func (c *Composer) Compose(ctx context.Context, responderID int64, subject, body, unsubscribeURL string) (string, string, error) {
	responder, err := c.Store.Repos().Campaigns.GetResponder(ctx, responderID)
	if err != nil {
		return "", "", err
	}
	tmpl, err := responder.GetTemplate(body)
	if err != nil {
		return "", "", err
	}

	rendered := RenderTemplate(tmpl.Body, map[string]string{unsubscribePlaceholder: unsubscribeURL})
	return fmt.Sprintf("Re: %s", subject), rendered, nil
}
