package domain

import (
	"time"
)

// Delivery attempt statuses.
const (
	DeliveryStatusSuccess = "success"
	DeliveryStatusFailed  = "failed"
	DeliveryStatusSkipped = "skipped"
)

// DeliveryAttempt is one attempted HTTP callback to one subscription for one event.
type DeliveryAttempt struct {
	ID             string    `json:"id"`
	EventID        string    `json:"event_id"`
	SubscriptionID string    `json:"subscription_id"`
	URL            string    `json:"url"`
	EventType      string    `json:"event_type"`
	PlayerID       string    `json:"player_id,omitempty"`
	AttemptNumber  int       `json:"attempt_number"`
	Status         string    `json:"status"`
	HTTPStatusCode *int      `json:"http_status_code,omitempty"`
	ResponseBody   *string   `json:"response_body,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	AttemptedAt    time.Time `json:"attempted_at"`
}

// DeadLetter records a delivery whose retry budget is exhausted.
type DeadLetter struct {
	ID             string     `json:"id"`
	EventID        string     `json:"event_id"`
	SubscriptionID string     `json:"subscription_id"`
	TotalAttempts  int        `json:"total_attempts"`
	LastError      *string    `json:"last_error,omitempty"`
	LastHTTPStatus *int       `json:"last_http_status,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     *string    `json:"resolved_by,omitempty"`
}
