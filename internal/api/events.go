package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"playerfeed/internal/domain"
	"playerfeed/internal/store"
)

// EventPublisher puts an event on the topic for the consumer to pick up.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.Event) error
}

type EventHandler struct {
	store     *store.PostgresStore
	publisher EventPublisher
}

func NewEventHandler(s *store.PostgresStore, pub EventPublisher) *EventHandler {
	return &EventHandler{store: s, publisher: pub}
}

type ingestEventRequest struct {
	EventType string          `json:"event_type"`
	PlayerID  string          `json:"player_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

type ingestEventResponse struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Status    string `json:"status"`
}

// Ingest publishes an event to the topic. Fan-out happens asynchronously in
// the consumer, so the response only acknowledges the publish.
func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Data) == 0 {
		respondError(w, http.StatusBadRequest, "data is required")
		return
	}
	if !json.Valid(req.Data) {
		respondError(w, http.StatusBadRequest, "data must be valid JSON")
		return
	}

	event := &domain.Event{
		EventID:    uuid.NewString(),
		EventType:  req.EventType,
		OccurredAt: time.Now().UTC(),
		PlayerID:   req.PlayerID,
		Data:       req.Data,
	}

	if err := h.publisher.Publish(r.Context(), event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to publish event")
		return
	}

	respondJSON(w, http.StatusAccepted, ingestEventResponse{
		EventID:   event.EventID,
		EventType: event.EventType,
		Status:    "queued",
	})
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	eventType := r.URL.Query().Get("event_type")
	limit := parseLimit(r.URL.Query().Get("limit"))

	events, err := h.store.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	event, err := h.store.GetEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get event")
		return
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "event not found")
		return
	}

	respondJSON(w, http.StatusOK, event)
}

func parseLimit(raw string) int {
	limit := 50
	if raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}
