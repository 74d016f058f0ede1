package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"playerfeed/internal/engine"
	"playerfeed/internal/store"
	ws "playerfeed/internal/websocket"
)

// NewRouter wires the management and ops API plus the WebSocket endpoints.
func NewRouter(pgStore *store.PostgresStore, retries *engine.RetryQueue, breaker *engine.CircuitBreaker, hub *ws.Hub, pub EventPublisher, promHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(corsMiddleware)

	subHandler := NewSubscriptionHandler(pgStore, breaker)
	eventHandler := NewEventHandler(pgStore, pub)
	deliveryHandler := NewDeliveryHandler(pgStore)
	dlqHandler := NewDeadLetterHandler(pgStore)
	dashHandler := NewDashboardHandler(pgStore, retries, breaker, hub)

	r.Method(http.MethodGet, "/metrics", promHandler)

	// Listener sessions: global feed and player-scoped feed
	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "")
	})
	r.Get("/ws/player/{playerID}", func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, chi.URLParam(r, "playerID"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", subHandler.Create)
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
			r.Get("/{id}/health", subHandler.Health)
			r.Delete("/{id}", subHandler.Disable)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/", eventHandler.Ingest)
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
		})

		r.Route("/deliveries", func(r chi.Router) {
			r.Get("/", deliveryHandler.List)
			r.Get("/{id}", deliveryHandler.Get)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/subscriptions-health", dashHandler.SubscriptionHealth)
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
