package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"playerfeed/internal/domain"
	"playerfeed/internal/engine"
)

// SubscriptionStore is the registry surface the subscription API needs.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)
	DisableSubscription(ctx context.Context, id string) (bool, error)
}

type SubscriptionHandler struct {
	store   SubscriptionStore
	breaker *engine.CircuitBreaker
}

func NewSubscriptionHandler(s SubscriptionStore, breaker *engine.CircuitBreaker) *SubscriptionHandler {
	return &SubscriptionHandler{store: s, breaker: breaker}
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if u, err := url.Parse(req.URL); err != nil || u.Scheme == "" || u.Host == "" {
		respondError(w, http.StatusBadRequest, "url must be absolute")
		return
	}
	// Match-all is disallowed: the filter must be explicit
	if len(req.EventTypes) == 0 {
		respondError(w, http.StatusBadRequest, "at least one event_type is required")
		return
	}
	for _, et := range req.EventTypes {
		if et == "" {
			respondError(w, http.StatusBadRequest, "event_types must not contain empty strings")
			return
		}
	}

	sub, err := h.store.CreateSubscription(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create subscription")
		return
	}

	respondJSON(w, http.StatusCreated, domain.CreateSubscriptionResponse{
		ID:     sub.ID,
		URL:    sub.URL,
		Secret: sub.Secret,
	})
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	// Secrets are write-once: returned on create, never on reads
	for i := range subs {
		subs[i].Secret = ""
	}

	respondJSON(w, http.StatusOK, subs)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	sub.Secret = ""
	respondJSON(w, http.StatusOK, sub)
}

// Health reports one subscription's delivery health: its registration plus
// the live circuit state for its endpoint.
func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.store.GetSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get subscription")
		return
	}
	if sub == nil {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	type subscriptionHealth struct {
		SubscriptionID string                     `json:"subscription_id"`
		URL            string                     `json:"url"`
		EventTypes     []string                   `json:"event_types"`
		Enabled        bool                       `json:"enabled"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	respondJSON(w, http.StatusOK, subscriptionHealth{
		SubscriptionID: sub.ID,
		URL:            sub.URL,
		EventTypes:     sub.EventTypes,
		Enabled:        sub.Enabled,
		CircuitBreaker: h.breaker.GetState(r.Context(), id),
	})
}

// Disable is the logical delete: the row stays, the dispatcher stops
// matching it. Prior deliveries are unaffected.
func (h *SubscriptionHandler) Disable(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ok, err := h.store.DisableSubscription(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to disable subscription")
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "subscription not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}
