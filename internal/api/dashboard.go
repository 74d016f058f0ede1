package api

import (
	"net/http"

	"playerfeed/internal/engine"
	"playerfeed/internal/store"
	ws "playerfeed/internal/websocket"
)

type DashboardHandler struct {
	store   *store.PostgresStore
	retries *engine.RetryQueue
	breaker *engine.CircuitBreaker
	hub     *ws.Hub
}

func NewDashboardHandler(s *store.PostgresStore, retries *engine.RetryQueue, breaker *engine.CircuitBreaker, hub *ws.Hub) *DashboardHandler {
	return &DashboardHandler{store: s, retries: retries, breaker: breaker, hub: hub}
}

// Metrics returns the aggregated pipeline view: delivery statistics from the
// database plus live retry queue depth and listener session count.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.store.GetDeliveryMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	queueDepth, err := h.retries.Depth(r.Context())
	if err != nil {
		queueDepth = 0
	}

	type metricsResponse struct {
		store.DeliveryMetrics
		RetryQueueDepth  int64 `json:"retry_queue_depth"`
		WebSocketClients int   `json:"websocket_clients"`
	}

	respondJSON(w, http.StatusOK, metricsResponse{
		DeliveryMetrics:  *metrics,
		RetryQueueDepth:  queueDepth,
		WebSocketClients: h.hub.ClientCount(),
	})
}

// SubscriptionHealth is the fleet view: every registered subscription with
// the current circuit state for its endpoint.
func (h *DashboardHandler) SubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	subs, err := h.store.ListSubscriptions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	type subscriptionHealth struct {
		SubscriptionID string                     `json:"subscription_id"`
		URL            string                     `json:"url"`
		EventTypes     []string                   `json:"event_types"`
		Enabled        bool                       `json:"enabled"`
		CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
	}

	result := make([]subscriptionHealth, 0, len(subs))
	for _, sub := range subs {
		result = append(result, subscriptionHealth{
			SubscriptionID: sub.ID,
			URL:            sub.URL,
			EventTypes:     sub.EventTypes,
			Enabled:        sub.Enabled,
			CircuitBreaker: h.breaker.GetState(r.Context(), sub.ID),
		})
	}

	respondJSON(w, http.StatusOK, result)
}
