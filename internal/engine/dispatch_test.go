package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"playerfeed/internal/domain"
	"playerfeed/internal/metrics"
)

type stubSource struct {
	subs []domain.Subscription
	err  error
}

func (s *stubSource) ListEnabledMatching(ctx context.Context, eventType string) ([]domain.Subscription, error) {
	if s.err != nil {
		return nil, s.err
	}
	var matched []domain.Subscription
	for _, sub := range s.subs {
		if !sub.Enabled {
			continue
		}
		for _, et := range sub.EventTypes {
			if et == eventType {
				matched = append(matched, sub)
				break
			}
		}
	}
	return matched, nil
}

type stubPool struct {
	mu   sync.Mutex
	jobs []DeliveryJob
}

func (p *stubPool) Submit(ctx context.Context, job DeliveryJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
	return nil
}

func (p *stubPool) submitted() []DeliveryJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]DeliveryJob(nil), p.jobs...)
}

type stubHub struct {
	mu       sync.Mutex
	messages [][]byte
}

func (h *stubHub) Broadcast(playerID string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
}

func newTestDispatcher(subs *stubSource, pool *stubPool, hub *stubHub) *Dispatcher {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New(func() int { return 0 })
	return NewDispatcher(subs, pool, hub, m, logger, 5)
}

func testEvent(eventType, playerID string) *domain.Event {
	return &domain.Event{
		EventID:    "evt-1",
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		PlayerID:   playerID,
		Data:       json.RawMessage(`{"delta":10}`),
	}
}

func TestDispatch_SubmitsJobPerMatchingSubscription(t *testing.T) {
	source := &stubSource{subs: []domain.Subscription{
		{ID: "sub-1", URL: "http://a.example/hook", EventTypes: []string{"player.score.updated"}, Secret: "whsec_a", Enabled: true},
		{ID: "sub-2", URL: "http://b.example/hook", EventTypes: []string{"player.score.updated", "player.level.up"}, Secret: "whsec_b", Enabled: true},
		{ID: "sub-3", URL: "http://c.example/hook", EventTypes: []string{"player.level.up"}, Secret: "whsec_c", Enabled: true},
		{ID: "sub-4", URL: "http://d.example/hook", EventTypes: []string{"player.score.updated"}, Secret: "whsec_d", Enabled: false},
	}}
	pool := &stubPool{}
	hub := &stubHub{}
	d := newTestDispatcher(source, pool, hub)

	event := testEvent("player.score.updated", "12345")
	d.Dispatch(context.Background(), event)

	jobs := pool.submitted()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs (sub-1, sub-2), got %d", len(jobs))
	}

	wantEnvelope, _ := json.Marshal(event)
	for _, job := range jobs {
		if job.EventID != "evt-1" {
			t.Errorf("job event_id = %q, want evt-1", job.EventID)
		}
		if job.Attempt != 1 {
			t.Errorf("job attempt = %d, want 1", job.Attempt)
		}
		if job.MaxAttempts != 5 {
			t.Errorf("job max_attempts = %d, want 5", job.MaxAttempts)
		}
		if !bytes.Equal(job.Envelope, wantEnvelope) {
			t.Errorf("job envelope = %s, want %s", job.Envelope, wantEnvelope)
		}
	}
}

func TestDispatch_BroadcastsBeforeWebhooks(t *testing.T) {
	source := &stubSource{}
	pool := &stubPool{}
	hub := &stubHub{}
	d := newTestDispatcher(source, pool, hub)

	d.Dispatch(context.Background(), testEvent("player.score.updated", "12345"))

	if len(hub.messages) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(hub.messages))
	}

	var decoded domain.Event
	if err := json.Unmarshal(hub.messages[0], &decoded); err != nil {
		t.Fatalf("broadcast payload is not a valid event: %v", err)
	}
	if decoded.EventID != "evt-1" {
		t.Errorf("broadcast event_id = %q, want evt-1", decoded.EventID)
	}
}

func TestDispatch_PlayerScopedSubscription(t *testing.T) {
	source := &stubSource{subs: []domain.Subscription{
		{ID: "sub-all", URL: "http://a.example/hook", EventTypes: []string{"player.score.updated"}, Enabled: true},
		{ID: "sub-p1", URL: "http://b.example/hook", EventTypes: []string{"player.score.updated"}, PlayerID: "p1", Enabled: true},
		{ID: "sub-p2", URL: "http://c.example/hook", EventTypes: []string{"player.score.updated"}, PlayerID: "p2", Enabled: true},
	}}
	pool := &stubPool{}
	d := newTestDispatcher(source, pool, &stubHub{})

	d.Dispatch(context.Background(), testEvent("player.score.updated", "p1"))

	jobs := pool.submitted()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs (unscoped + p1), got %d", len(jobs))
	}
	for _, job := range jobs {
		if job.SubscriptionID == "sub-p2" {
			t.Error("subscription scoped to p2 should not receive a p1 event")
		}
	}
}

func TestDispatch_SourceErrorStillBroadcasts(t *testing.T) {
	source := &stubSource{err: errors.New("database unavailable")}
	pool := &stubPool{}
	hub := &stubHub{}
	d := newTestDispatcher(source, pool, hub)

	d.Dispatch(context.Background(), testEvent("player.score.updated", "12345"))

	if len(hub.messages) != 1 {
		t.Errorf("expected broadcast despite subscription lookup failure, got %d", len(hub.messages))
	}
	if len(pool.submitted()) != 0 {
		t.Errorf("expected 0 jobs on lookup failure, got %d", len(pool.submitted()))
	}
}

func TestDispatch_ManyEvents(t *testing.T) {
	source := &stubSource{subs: []domain.Subscription{
		{ID: "sub-1", URL: "http://a.example/hook", EventTypes: []string{"player.score.updated"}, Enabled: true},
	}}
	pool := &stubPool{}
	d := newTestDispatcher(source, pool, &stubHub{})

	for i := 0; i < 100; i++ {
		eventType := "player.score.updated"
		if i%2 == 1 {
			eventType = "player.level.up"
		}
		event := testEvent(eventType, "12345")
		event.EventID = fmt.Sprintf("evt-%d", i)
		d.Dispatch(context.Background(), event)
	}

	if got := len(pool.submitted()); got != 50 {
		t.Errorf("expected 50 jobs for the matching event type, got %d", got)
	}
}
