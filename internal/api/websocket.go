package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openusb/usbhubd/internal/infrastructure/logging"
	"github.com/openusb/usbhubd/internal/session"
)

// WebSocket constants.
const (
	// WSTypeEvent tags broadcast state change messages.
	WSTypeEvent = "event"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 64

	// wsWriteWait bounds a single write to a client.
	wsWriteWait = 10 * time.Second
)

// WSMessage is the envelope for messages sent to WebSocket clients.
type WSMessage struct {
	Type      string `json:"type"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload"`
}

// wsChangePayload is the body of a channel.changed event.
type wsChangePayload struct {
	Function string `json:"function"`
	Channels []int  `json:"channels"`
	State    int    `json:"state"`
}

// Hub manages WebSocket connections and broadcasts state changes.
// The stream is one-way: inbound messages are read and discarded.
type Hub struct {
	logger  *logging.Logger
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
}

// wsClient is one connected WebSocket client.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// upgrader configures the WebSocket upgrader. The service binds to
// localhost by default, so origins are not checked.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// NewHub creates a WebSocket hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// unregister removes a client. Only the goroutine that actually removes
// the client closes its send channel, preventing double-close panics
// when shutdown and a read error race.
func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	_, existed := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if existed {
		close(c.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// BroadcastChange sends a channel.changed event to every client.
// Clients whose buffers are full are dropped rather than blocking the
// caller, which sits on the HTTP request path.
func (h *Hub) BroadcastChange(ev session.Event) {
	channels := make([]int, len(ev.Channels))
	for i, ch := range ev.Channels {
		channels[i] = int(ch)
	}

	msg := WSMessage{
		Type:      WSTypeEvent,
		EventType: "channel.changed",
		Timestamp: ev.Time.UTC().Format(time.RFC3339),
		Payload: wsChangePayload{
			Function: ev.Function,
			Channels: channels,
			State:    int(ev.State),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshalling broadcast message", "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.trySend(data) {
			h.logger.Warn("websocket client not keeping up, dropping")
			go h.unregister(c)
		}
	}
}

// trySend attempts a non-blocking send to the client. It absorbs the
// send-on-closed-channel panic that occurs when the client is
// unregistered between the broadcast snapshot and the send, and
// reports a full buffer as not sent.
func (c *wsClient) trySend(data []byte) (sent bool) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// handleWS serves GET /ws, upgrading the connection and streaming
// state change events until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	s.hub.register(c)

	go c.writePump()
	go c.readPump(s.hub)
}

// writePump drains the send channel to the connection. It exits when
// the channel is closed by unregister.
func (c *wsClient) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}

// readPump discards inbound messages and detects disconnects.
func (c *wsClient) readPump(h *Hub) {
	defer h.unregister(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
