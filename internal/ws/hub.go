// Package ws pushes live import progress to connected dashboard clients
// over websockets. Delivery is best effort: a slow client drops events
// rather than stalling the job that produced them.
package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/EthanVT97/rangoon-middleware/internal/metrics"
)

// EventType labels a progress event.
type EventType string

const (
	EventStatusChanged   EventType = "status_changed"
	EventProgressUpdated EventType = "progress_updated"
	EventBatchComplete   EventType = "batch_complete"
	EventSystemAlert     EventType = "system_alert"
)

// Event is one message pushed to a user's open sockets.
type Event struct {
	Type  EventType              `json:"type"`
	JobID string                 `json:"job_id,omitempty"`
	Data  map[string]interface{} `json:"data"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 32
)

// Client is one websocket connection owned by a user.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan Event
}

// Hub fans events out to every connection a user holds. Users only ever see
// their own events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool
	log     zerolog.Logger
}

// NewHub builds an empty hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]bool),
		log:     log.With().Str("component", "ws_hub").Logger(),
	}
}

// Register attaches conn to userID and starts its read/write pumps. The
// caller hands over ownership of the connection.
func (h *Hub) Register(userID string, conn *websocket.Conn) *Client {
	client := &Client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan Event, sendBufferSize),
	}

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[userID] = set
	}
	set[client] = true
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	h.log.Debug().Str("user_id", userID).Msg("websocket client connected")
	go client.writePump()
	go client.readPump()
	return client
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	dropped := false
	if set, ok := h.clients[c.userID]; ok {
		if set[c] {
			delete(set, c)
			close(c.send)
			dropped = true
		}
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	if dropped {
		metrics.WSConnections.Dec()
	}
	h.log.Debug().Str("user_id", c.userID).Msg("websocket client disconnected")
}

// Publish delivers an event to every connection userID holds. Connections
// with a full send buffer are skipped.
func (h *Hub) Publish(userID string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- event:
		default:
			h.log.Warn().
				Str("user_id", userID).
				Str("event_type", string(event.Type)).
				Msg("dropping event for slow websocket client")
		}
	}
}

// Broadcast delivers a system-wide event to every connected client.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for client := range set {
			select {
			case client.send <- event:
			default:
			}
		}
	}
}

// ConnectionCount reports how many sockets userID currently holds.
func (h *Hub) ConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// readPump drains inbound frames so pings and close frames are processed.
// Clients never send application messages.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
