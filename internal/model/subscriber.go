// internal/model/subscriber.go
package model

import "time"

// Subscriber is unique by email address.
type Subscriber struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Subscription links one subscriber to one campaign. It is created once and
// afterwards only toggled between active and inactive.
type Subscription struct {
	ID           int64      `db:"id" json:"id"`
	SubscriberID int64      `db:"subscriber_id" json:"subscriber_id"`
	CampaignID   int64      `db:"campaign_id" json:"campaign_id"`
	Token        string     `db:"token" json:"-"`
	Active       bool       `db:"active" json:"active"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
