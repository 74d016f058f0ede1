// Package stream is the event source boundary: a Redis pub/sub channel
// stands in for the append-only topic of player events.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"playerfeed/internal/domain"
	"playerfeed/internal/metrics"
	"playerfeed/internal/rules"
)

// EventArchive records consumed events, best-effort.
type EventArchive interface {
	RecordEvent(ctx context.Context, event *domain.Event) error
}

// Handler receives each consumed event, in source order.
type Handler interface {
	Dispatch(ctx context.Context, event *domain.Event)
}

// Consumer is the single reader of the event topic. It dispatches each
// well-formed event plus its rule-derived follow-ons, one at a time, in
// order. Losing the topic connection is fatal and surfaces to the
// supervisor; everything downstream is contained.
type Consumer struct {
	client  *redis.Client
	channel string
	archive EventArchive
	handler Handler
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewConsumer(client *redis.Client, channel string, archive EventArchive, handler Handler, m *metrics.Metrics, logger *slog.Logger) *Consumer {
	return &Consumer{
		client:  client,
		channel: channel,
		archive: archive,
		handler: handler,
		metrics: m,
		logger:  logger,
	}
}

// Run consumes the topic until the context is cancelled (returns nil) or the
// subscription breaks (returns the error). Reconnect policy belongs to the
// supervisor, not here.
func (c *Consumer) Run(ctx context.Context) error {
	sub := c.client.Subscribe(ctx, c.channel)
	defer sub.Close()

	c.logger.Info("consumer started", "channel", c.channel)

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			return fmt.Errorf("receiving from topic %q: %w", c.channel, err)
		}

		c.handle(ctx, []byte(msg.Payload))
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) {
	var event domain.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		c.logger.Warn("skipping malformed event", "error", err)
		return
	}
	if event.EventType == "" {
		c.logger.Warn("skipping event without event_type")
		return
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	c.metrics.EventsConsumed.Inc()

	if c.archive != nil {
		if err := c.archive.RecordEvent(ctx, &event); err != nil {
			c.logger.Error("failed to archive event",
				"error", err,
				"event_id", event.EventID,
			)
		}
	}

	c.handler.Dispatch(ctx, &event)

	for _, derived := range rules.Derive(&event) {
		c.metrics.EventsDerived.Inc()
		c.handler.Dispatch(ctx, &derived)
	}
}
