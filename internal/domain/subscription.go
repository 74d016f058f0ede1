package domain

import (
	"time"
)

// Subscription is a persisted webhook registration. Subscriptions are never
// physically deleted during a run; disabling sets Enabled to false.
type Subscription struct {
	ID                 string    `json:"id"`
	URL                string    `json:"url"`
	EventTypes         []string  `json:"event_types"`
	PlayerID           string    `json:"player_id,omitempty"`
	Secret             string    `json:"secret,omitempty"`
	RateLimitPerSecond int       `json:"rate_limit_per_second"`
	Enabled            bool      `json:"enabled"`
	CreatedAt          time.Time `json:"created_at"`
}

type CreateSubscriptionRequest struct {
	URL                string   `json:"url"`
	EventTypes         []string `json:"event_types"`
	PlayerID           string   `json:"player_id,omitempty"`
	Secret             string   `json:"secret,omitempty"`
	RateLimitPerSecond int      `json:"rate_limit_per_second,omitempty"`
}

type CreateSubscriptionResponse struct {
	ID     string `json:"id"`
	URL    string `json:"url"`
	Secret string `json:"secret"`
}
