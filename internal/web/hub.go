package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the envelope pushed to every connected panel.
type Event struct {
	Event   string    `json:"event"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// client serializes writes to one connection. The hub is fed from many
// goroutines at once (assistant loop, log fan-out, HTTP handlers) and
// gorilla/websocket allows only a single writer per connection.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Hub broadcasts assistant events to all connected websocket clients. It
// implements the assistant's event sink.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
	}
}

func (h *Hub) register(conn *websocket.Conn) string {
	id := uuid.NewString()

	h.mu.Lock()
	h.clients[id] = &client{conn: conn}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("panel client connected", "id", id, "clients", count)
	return id
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.conn.Close()
		h.logger.Debug("panel client disconnected", "id", id, "clients", count)
	}
}

// Publish sends an event to every connected client. Slow or broken clients
// are dropped rather than blocking the assistant loop.
func (h *Hub) Publish(event string, payload any) {
	msg, err := json.Marshal(Event{Event: event, Payload: payload, Time: time.Now()})
	if err != nil {
		h.logger.Error("encoding event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	clients := make(map[string]*client, len(h.clients))
	for id, c := range h.clients {
		clients[id] = c
	}
	h.mu.RUnlock()

	for id, c := range clients {
		if err := c.send(msg); err != nil {
			h.unregister(id)
		}
	}
}

// ServeWS upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	id := h.register(conn)
	defer h.unregister(id)

	// Clients only listen; reads surface disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// ClientCount reports connected panels, mainly for the status endpoint.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
