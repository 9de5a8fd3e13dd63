package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/luizidebook/morro-digital-sub002/pkg/nav"
)

const (
	eventBuffer  = 32
	writeTimeout = 5 * time.Second
)

// EventsHandler streams navigation events to WebSocket clients. Every
// machine event is forwarded as one JSON message; clients filter by the
// "type" field. A client that cannot keep up is dropped.
type EventsHandler struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan nav.Event
}

// NewEventsHandler creates the handler and subscribes it to the machine.
func NewEventsHandler(m *nav.Machine) *EventsHandler {
	h := &EventsHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Local companion UI only, no cross-origin clients.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}

	for _, t := range []nav.EventType{
		nav.EventStatusChanged,
		nav.EventInstructionChanged,
		nav.EventRouteDeviation,
		nav.EventArrival,
		nav.EventStateUpdated,
	} {
		m.Subscribe(t, h.broadcast)
	}
	return h
}

// Handle upgrades the connection and streams events until the client
// disconnects. GET /api/events
func (h *EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{conn: conn, send: make(chan nav.Event, eventBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)

	// Drain the connection: we never expect client messages, but the
	// read loop is what surfaces the close handshake.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(c)
}

func (h *EventsHandler) broadcast(ev nav.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			// Slow client, disconnect it rather than stall the machine.
			slog.Warn("Dropping slow events client")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *EventsHandler) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for ev := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := c.conn.WriteJSON(ev); err != nil {
			return
		}
	}
	// Channel closed by broadcast: tell the client before hanging up.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}

func (h *EventsHandler) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
}

// ClientCount reports the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
