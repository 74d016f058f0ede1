package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"playerfeed/internal/domain"
	"playerfeed/internal/metrics"
)

// DeliveryJob is one webhook delivery task: one event bound for one
// subscription. The envelope is the event serialized once at dispatch time;
// it is the exact body that gets POSTed and signed.
type DeliveryJob struct {
	EventID            string          `json:"event_id"`
	EventType          string          `json:"event_type"`
	PlayerID           string          `json:"player_id,omitempty"`
	SubscriptionID     string          `json:"subscription_id"`
	URL                string          `json:"url"`
	Secret             string          `json:"secret"`
	RateLimitPerSecond int             `json:"rate_limit_per_second"`
	Envelope           json.RawMessage `json:"envelope"`
	Attempt            int             `json:"attempt"`
	MaxAttempts        int             `json:"max_attempts"`
}

// SubscriptionSource is the registry view the dispatcher consumes.
type SubscriptionSource interface {
	ListEnabledMatching(ctx context.Context, eventType string) ([]domain.Subscription, error)
}

// Submitter accepts delivery jobs. Submit may block briefly when the worker
// pool is at its concurrency ceiling; that is the pipeline's only intentional
// backpressure point.
type Submitter interface {
	Submit(ctx context.Context, job DeliveryJob) error
}

// Broadcaster pushes an envelope to live listener sessions, best-effort.
type Broadcaster interface {
	Broadcast(playerID string, message []byte)
}

// Dispatcher fans one event out to all interested targets: the realtime
// broadcast registry and every matching enabled webhook subscription. A
// failure on any one target never stops the current or subsequent events.
type Dispatcher struct {
	subs        SubscriptionSource
	pool        Submitter
	hub         Broadcaster
	metrics     *metrics.Metrics
	logger      *slog.Logger
	maxAttempts int
}

func NewDispatcher(subs SubscriptionSource, pool Submitter, hub Broadcaster, m *metrics.Metrics, logger *slog.Logger, maxAttempts int) *Dispatcher {
	return &Dispatcher{
		subs:        subs,
		pool:        pool,
		hub:         hub,
		metrics:     m,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Dispatch broadcasts the event to listener sessions, then submits one
// delivery job per matching subscription. Each job is independent; webhook
// deliveries for this event complete concurrently with later dispatches.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.Event) {
	envelope, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("failed to marshal event envelope",
			"error", err,
			"event_id", event.EventID,
		)
		return
	}

	d.hub.Broadcast(event.PlayerID, envelope)
	d.metrics.Broadcasts.Inc()

	subs, err := d.subs.ListEnabledMatching(ctx, event.EventType)
	if err != nil {
		d.logger.Error("failed to list matching subscriptions",
			"error", err,
			"event_id", event.EventID,
			"event_type", event.EventType,
		)
		return
	}

	submitted := 0
	for _, sub := range subs {
		if sub.PlayerID != "" && sub.PlayerID != event.PlayerID {
			continue
		}

		job := DeliveryJob{
			EventID:            event.EventID,
			EventType:          event.EventType,
			PlayerID:           event.PlayerID,
			SubscriptionID:     sub.ID,
			URL:                sub.URL,
			Secret:             sub.Secret,
			RateLimitPerSecond: sub.RateLimitPerSecond,
			Envelope:           envelope,
			Attempt:            1,
			MaxAttempts:        d.maxAttempts,
		}

		if err := d.pool.Submit(ctx, job); err != nil {
			d.logger.Warn("delivery submission cancelled",
				"error", err,
				"event_id", event.EventID,
				"subscription_id", sub.ID,
			)
			return
		}
		submitted++
	}

	if submitted > 0 {
		d.logger.Info("fan-out complete",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"deliveries_submitted", submitted,
		)
	}
}
