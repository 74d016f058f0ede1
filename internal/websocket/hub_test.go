package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func setupTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("player"))
	}))
	t.Cleanup(srv.Close)

	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, playerID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	if playerID != "" {
		wsURL += "?player=" + playerID
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_ClientCount(t *testing.T) {
	hub, srv := setupTestHub(t)

	if hub.ClientCount() != 0 {
		t.Fatalf("fresh hub should have 0 clients, got %d", hub.ClientCount())
	}

	conn1 := dial(t, srv, "")
	conn2 := dial(t, srv, "p1")

	time.Sleep(100 * time.Millisecond)
	if got := hub.ClientCount(); got != 2 {
		t.Errorf("client count = %d, want 2", got)
	}

	conn1.Close()
	conn2.Close()

	time.Sleep(200 * time.Millisecond)
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("client count after disconnect = %d, want 0", got)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, srv := setupTestHub(t)

	conn1 := dial(t, srv, "")
	conn2 := dial(t, srv, "")
	gone := dial(t, srv, "")

	time.Sleep(100 * time.Millisecond)
	gone.Close()
	time.Sleep(100 * time.Millisecond)

	envelope := []byte(`{"event_id":"evt-1","event_type":"player.score.updated"}`)
	hub.Broadcast("", envelope)

	for i, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i+1, err)
		}
		if string(data) != string(envelope) {
			t.Errorf("client %d got %s, want %s", i+1, data, envelope)
		}
	}
}

func TestHub_ShutdownReleasesSessions(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(logger)

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("player"))
	}))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "")
	time.Sleep(100 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Fatalf("client count = %d, want 1", hub.ClientCount())
	}

	cancel()

	select {
	case <-hubDone:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("client count after shutdown = %d, want 0", got)
	}

	// The session's connection is torn down rather than left hanging.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// A connection arriving after shutdown is closed, not parked forever.
	late := dial(t, srv, "")
	late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Error("post-shutdown session should be closed")
	}
	if got := hub.ClientCount(); got != 0 {
		t.Errorf("client count after late connect = %d, want 0", got)
	}
}

func TestHub_PlayerScopedSessions(t *testing.T) {
	hub, srv := setupTestHub(t)

	global := dial(t, srv, "")
	p1 := dial(t, srv, "p1")
	p2 := dial(t, srv, "p2")

	time.Sleep(100 * time.Millisecond)

	envelope := []byte(`{"event_id":"evt-1","player_id":"p1"}`)
	hub.Broadcast("p1", envelope)

	global.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := global.ReadMessage(); err != nil {
		t.Fatalf("global session read: %v", err)
	} else if string(data) != string(envelope) {
		t.Errorf("global session got %s, want %s", data, envelope)
	}

	p1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := p1.ReadMessage(); err != nil {
		t.Fatalf("p1 session read: %v", err)
	} else if string(data) != string(envelope) {
		t.Errorf("p1 session got %s, want %s", data, envelope)
	}

	p2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := p2.ReadMessage(); err == nil {
		t.Errorf("p2 session should not receive p1 events, got %s", data)
	}
}
