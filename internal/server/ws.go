package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ayusman/camgestures/internal/events"
	"github.com/ayusman/camgestures/internal/lifecycle"
)

const (
	sendBuffer = 32
	writeWait  = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is what EventHub sends to websocket clients.
type Message struct {
	Type  string               `json:"type"`
	Event *events.Notification `json:"event,omitempty"`
	State *lifecycle.Snapshot  `json:"state,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub pushes emitted events and lifecycle snapshots to websocket
// clients. A client that falls behind loses messages rather than stalling
// the broadcaster.
type EventHub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
	logger  zerolog.Logger
}

// NewEventHub creates an EventHub with no clients.
func NewEventHub(logger zerolog.Logger) *EventHub {
	return &EventHub{
		clients: make(map[*client]struct{}),
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// HandleEvent is an events.Handler.
func (h *EventHub) HandleEvent(n events.Notification) {
	h.broadcast(Message{Type: "event", Event: &n})
}

// HandleState is a lifecycle change listener.
func (h *EventHub) HandleState(s lifecycle.Snapshot) {
	h.broadcast(Message{Type: "state", State: &s})
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EventHub) broadcast(m Message) {
	msg, err := json.Marshal(m)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Msg("client too slow, dropping message")
		}
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.write(c)

	// Reads only detect the client going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(c)
}

func (h *EventHub) write(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

func (h *EventHub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Close disconnects every client and refuses new ones.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
