// internal/model/message.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"net/textproto"
	"time"
)

type IncomingMessage struct {
	ID          int64     `db:"id" json:"id"`
	CampaignID  int64     `db:"campaign_id" json:"campaign_id"`
	FromAddress string    `db:"from_address" json:"from_address"`
	ToAddress   string    `db:"to_address" json:"to_address"`
	Subject     string    `db:"subject" json:"subject"`
	Body        string    `db:"body" json:"body"`
	BodyHTML    string    `db:"body_html" json:"body_html,omitempty"`
	Headers     Headers   `db:"headers" json:"headers,omitempty"`
	MessageID   string    `db:"message_id" json:"message_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type OutgoingMessage struct {
	ID          int64     `db:"id" json:"id"`
	CampaignID  int64     `db:"campaign_id" json:"campaign_id"`
	ResponderID *int64    `db:"responder_id" json:"responder_id,omitempty"`
	ToAddresses []string  `db:"to_addresses" json:"to_addresses"`
	Subject     string    `db:"subject" json:"subject"`
	MessageID   string    `db:"message_id" json:"message_id"`
	Provider    string    `db:"provider" json:"provider"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Headers holds message headers keyed by canonical MIME header name.
// It is stored as a JSON object.
type Headers map[string][]string

func (h Headers) Get(key string) string {
	if v := h[textproto.CanonicalMIMEHeaderKey(key)]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func (h Headers) Add(key, value string) {
	key = textproto.CanonicalMIMEHeaderKey(key)
	h[key] = append(h[key], value)
}

// Value encodes as a JSON string; lib/pq would send []byte as bytea.
func (h Headers) Value() (driver.Value, error) {
	if h == nil {
		return "{}", nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (h *Headers) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*h = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Headers", src)
	}
	out := Headers{}
	if err := json.Unmarshal(data, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

// OutboxEntry is a queue job recorded in the same transaction as the state
// change that produced it. It is deleted once the job has been published.
type OutboxEntry struct {
	ID        int64             `db:"id" json:"id"`
	JobID     string            `db:"job_id" json:"job_id"`
	Task      string            `db:"task" json:"task"`
	Args      map[string]string `db:"args" json:"args"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
