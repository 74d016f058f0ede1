package domain

import (
	"encoding/json"
	"time"
)

// Event is one record of player activity read from the event topic.
// Data is opaque to the pipeline; only the rules stage looks inside it.
// The JSON shape doubles as the outbound envelope for both WebSocket
// pushes and webhook POSTs.
type Event struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	PlayerID   string          `json:"player_id,omitempty"`
	Data       json.RawMessage `json:"data"`
}
