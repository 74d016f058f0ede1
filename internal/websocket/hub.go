package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// Hub is the realtime broadcast registry: it tracks live listener sessions
// and pushes event envelopes to them, best-effort. A session scoped to a
// player receives only that player's events; an unscoped session receives
// everything. A send failure drops the offending session and never reaches
// the broadcaster.
type Hub struct {
	clients    map[*client]struct{}
	mu         sync.RWMutex
	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	logger     *slog.Logger
}

type message struct {
	playerID string
	data     []byte
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	playerID string
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run drives registration and broadcast until the context is cancelled.
// Should be called as a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("listener session connected", "player_id", c.playerID, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("listener session disconnected", "total_clients", total)

		case msg := <-h.broadcast:
			// Snapshot the matching sessions, then send outside the lock.
			h.mu.RLock()
			targets := make([]*client, 0, len(h.clients))
			for c := range h.clients {
				if c.playerID == "" || c.playerID == msg.playerID {
					targets = append(targets, c)
				}
			}
			h.mu.RUnlock()

			var stalled []*client
			for _, c := range targets {
				select {
				case c.send <- msg.data:
				default:
					// Send buffer full — the session is not keeping up
					stalled = append(stalled, c)
				}
			}

			if len(stalled) > 0 {
				h.mu.Lock()
				for _, c := range stalled {
					if _, ok := h.clients[c]; ok {
						delete(h.clients, c)
						close(c.send)
					}
				}
				h.mu.Unlock()
				h.logger.Warn("dropped stalled listener sessions", "count", len(stalled))
			}
		}
	}
}

// shutdown releases every session. Closing done unblocks any goroutine about
// to register or unregister; closing the send channels winds down the pumps.
func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	h.logger.Info("listener registry stopped")
}

// Broadcast queues an envelope for delivery to all matching sessions.
// Non-blocking: if the hub cannot keep up, the envelope is dropped.
func (h *Hub) Broadcast(playerID string, data []byte) {
	select {
	case h.broadcast <- message{playerID: playerID, data: data}:
	default:
		h.logger.Warn("broadcast channel full, dropping event")
	}
}

// Serve upgrades the HTTP connection and registers the session. An empty
// playerID subscribes the session to all events.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, playerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		playerID: playerID,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected listener sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump consumes the connection to detect pings and disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// writePump pushes envelopes and keepalive pings to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
