package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"playerfeed/internal/domain"
	"playerfeed/internal/metrics"
	"playerfeed/internal/rules"
)

type fakeHandler struct {
	events chan domain.Event
}

func (f *fakeHandler) Dispatch(ctx context.Context, event *domain.Event) {
	f.events <- *event
}

type consumerFixture struct {
	consumer *Consumer
	client   *redis.Client
	handler  *fakeHandler
	mr       *miniredis.Miniredis
}

func setupConsumer(t *testing.T) *consumerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New(func() int { return 0 })
	handler := &fakeHandler{events: make(chan domain.Event, 16)}

	return &consumerFixture{
		consumer: NewConsumer(client, "player-events", nil, handler, m, logger),
		client:   client,
		handler:  handler,
		mr:       mr,
	}
}

// startConsumer runs the consumer and waits for the subscription to land so
// that published messages are not lost.
func startConsumer(t *testing.T, fx *consumerFixture) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fx.consumer.Run(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	return cancel, done
}

func TestConsumer_DispatchesPublishedEvent(t *testing.T) {
	fx := setupConsumer(t)
	cancel, _ := startConsumer(t, fx)
	defer cancel()

	payload := `{"event_id":"evt-1","event_type":"player.login","player_id":"12345","data":{}}`
	if err := fx.client.Publish(context.Background(), "player-events", payload).Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-fx.handler.events:
		if event.EventID != "evt-1" {
			t.Errorf("event_id = %q, want evt-1", event.EventID)
		}
		if event.EventType != "player.login" {
			t.Errorf("event_type = %q, want player.login", event.EventType)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
}

func TestConsumer_FillsMissingIdentity(t *testing.T) {
	fx := setupConsumer(t)
	cancel, _ := startConsumer(t, fx)
	defer cancel()

	payload := `{"event_type":"player.login","data":{}}`
	if err := fx.client.Publish(context.Background(), "player-events", payload).Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case event := <-fx.handler.events:
		if event.EventID == "" {
			t.Error("event_id should be generated when absent")
		}
		if event.OccurredAt.IsZero() {
			t.Error("occurred_at should be set when absent")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not dispatched")
	}
}

func TestConsumer_SkipsMalformedPayload(t *testing.T) {
	fx := setupConsumer(t)
	cancel, _ := startConsumer(t, fx)
	defer cancel()

	ctx := context.Background()
	fx.client.Publish(ctx, "player-events", `not json at all`)
	fx.client.Publish(ctx, "player-events", `{"data":{}}`) // missing event_type
	fx.client.Publish(ctx, "player-events", `{"event_id":"evt-ok","event_type":"player.login","data":{}}`)

	select {
	case event := <-fx.handler.events:
		if event.EventID != "evt-ok" {
			t.Errorf("first dispatched event = %q, want evt-ok (bad payloads skipped)", event.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("well-formed event was not dispatched")
	}

	select {
	case event := <-fx.handler.events:
		t.Errorf("unexpected extra dispatch: %+v", event)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestConsumer_DispatchesDerivedEvents(t *testing.T) {
	fx := setupConsumer(t)
	cancel, _ := startConsumer(t, fx)
	defer cancel()

	event := domain.Event{
		EventID:    "evt-score",
		EventType:  rules.EventScoreUpdated,
		OccurredAt: time.Now().UTC(),
		PlayerID:   "12345",
		Data:       json.RawMessage(`{"delta":20,"score_before":990,"score_after":1010}`),
	}
	payload, _ := json.Marshal(event)
	if err := fx.client.Publish(context.Background(), "player-events", string(payload)).Err(); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	var got []string
	for i := 0; i < 2; i++ {
		select {
		case event := <-fx.handler.events:
			got = append(got, event.EventType)
		case <-time.After(2 * time.Second):
			t.Fatalf("expected 2 dispatches (base + level up), got %d: %v", len(got), got)
		}
	}

	if got[0] != rules.EventScoreUpdated {
		t.Errorf("first dispatch = %q, want %q", got[0], rules.EventScoreUpdated)
	}
	if got[1] != rules.EventLevelUp {
		t.Errorf("second dispatch = %q, want %q", got[1], rules.EventLevelUp)
	}
}

func TestConsumer_ReturnsNilOnCancel(t *testing.T) {
	fx := setupConsumer(t)
	cancel, done := startConsumer(t, fx)

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancel, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConsumer_ReturnsErrorOnLostConnection(t *testing.T) {
	fx := setupConsumer(t)
	cancel, done := startConsumer(t, fx)
	defer cancel()

	fx.mr.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run should return an error when the topic connection is lost")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after connection loss")
	}
}

func TestPublisher_RoundTrip(t *testing.T) {
	fx := setupConsumer(t)
	cancel, _ := startConsumer(t, fx)
	defer cancel()

	pub := NewPublisher(fx.client, "player-events")
	event := &domain.Event{
		EventID:    "evt-pub",
		EventType:  "player.login",
		OccurredAt: time.Now().UTC(),
		PlayerID:   "12345",
		Data:       json.RawMessage(`{"device":"mobile"}`),
	}
	if err := pub.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-fx.handler.events:
		if got.EventID != "evt-pub" || got.PlayerID != "12345" {
			t.Errorf("round-tripped event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("published event was not consumed")
	}
}
