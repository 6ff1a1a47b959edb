// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a webhook call carries the wrong api token.
var ErrUnauthorized = errors.New("unauthorized")

// ErrCampaignNotFound means no campaign matches the recipient address.
type ErrCampaignNotFound struct {
	Name string
	ID   int64
}

func (e *ErrCampaignNotFound) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("campaign %q not found", e.Name)
	}
	return fmt.Sprintf("campaign with ID %d not found", e.ID)
}

// NewCampaignNotFound builds a not-found error for a campaign name.
func NewCampaignNotFound(name string) error {
	return &ErrCampaignNotFound{Name: name}
}

// NewCampaignIDNotFound builds a not-found error for a campaign id.
func NewCampaignIDNotFound(id int64) error {
	return &ErrCampaignNotFound{ID: id}
}

type ErrResponderNotFound struct {
	ID int64
}

func (e *ErrResponderNotFound) Error() string {
	return fmt.Sprintf("autoresponder with ID %d not found", e.ID)
}

func NewResponderNotFound(id int64) error {
	return &ErrResponderNotFound{ID: id}
}

type ErrSubscriptionNotFound struct {
	Token string
}

func (e *ErrSubscriptionNotFound) Error() string {
	return "subscription not found"
}

func NewSubscriptionNotFound(token string) error {
	return &ErrSubscriptionNotFound{Token: token}
}

// ErrNoTemplate is returned when a responder has nothing to render.
type ErrNoTemplate struct {
	ResponderID int64
}

func (e *ErrNoTemplate) Error() string {
	return fmt.Sprintf("autoresponder %d has no templates", e.ResponderID)
}

func NewNoTemplate(responderID int64) error {
	return &ErrNoTemplate{ResponderID: responderID}
}

// ErrMalformedPayload wraps a provider parse failure of an inbound payload.
type ErrMalformedPayload struct {
	Provider string
	Err      error
}

func (e *ErrMalformedPayload) Error() string {
	return fmt.Sprintf("malformed %s payload: %v", e.Provider, e.Err)
}

func (e *ErrMalformedPayload) Unwrap() error {
	return e.Err
}

func NewMalformedPayload(provider string, err error) error {
	return &ErrMalformedPayload{Provider: provider, Err: err}
}

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so that queues drop the job instead of retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return err
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is permanent.
// Missing entities and empty responders count as permanent too.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var p *PermanentError
	if errors.As(err, &p) {
		return true
	}
	var responderErr *ErrResponderNotFound
	if errors.As(err, &responderErr) {
		return true
	}
	var templateErr *ErrNoTemplate
	return errors.As(err, &templateErr)
}
