package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/giantswarm/kube-context-monitor/internal/logging"
	"github.com/giantswarm/kube-context-monitor/internal/monitor"
)

// Event types sent on the event stream.
const (
	EventResourceUpdated      = "resource_updated"
	EventResourceCountUpdated = "resource_count_updated"
	EventHealthChanged        = "health_changed"
)

// EventsPath is the WebSocket endpoint of the event stream.
const EventsPath = APIPrefix + "/events"

const (
	// DefaultPingInterval is how often idle stream clients are pinged.
	DefaultPingInterval = 30 * time.Second

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Clients only send pongs and close frames
	maxClientMessageSize = 4096

	// Outbound events queued per client before it is dropped
	clientSendBuffer = 256
)

// Event is one message on the event stream.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans manager events out to WebSocket clients.
type EventHub struct {
	logger       *slog.Logger
	upgrader     websocket.Upgrader
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	unsubs  []func()
	closed  bool
}

// NewEventHub subscribes to the manager's resource and health events.
// Close must be called to unsubscribe.
func NewEventHub(sc *ServerContext) *EventHub {
	cfg := sc.Config()
	h := &EventHub{
		logger:       sc.Logger().With(logging.Operation("event-stream")),
		pingInterval: cfg.PingInterval,
		clients:      make(map[*streamClient]struct{}),
	}
	if h.pingInterval <= 0 {
		h.pingInterval = DefaultPingInterval
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}

	m := sc.Monitor()
	h.unsubs = []func(){
		m.OnResourceUpdated(func(u monitor.CacheUpdate) {
			h.broadcast(EventResourceUpdated, u)
		}),
		m.OnResourceCountUpdated(func(u monitor.CacheUpdate) {
			h.broadcast(EventResourceCountUpdated, u)
		}),
		m.OnHealthChanged(func(s monitor.HealthState) {
			h.broadcast(EventHealthChanged, s)
		}),
	}
	return h
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.Debug("WebSocket upgrade failed", logging.Err(err))
		return
	}

	c := &streamClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// ClientCount returns the number of connected stream clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the manager and disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	unsubs := h.unsubs
	h.unsubs = nil
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (h *EventHub) register(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *EventHub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *EventHub) broadcast(eventType string, data any) {
	payload, err := json.Marshal(Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.logger.Error("Failed to encode stream event", slog.String("type", eventType), logging.Err(err))
		return
	}

	var slow []*streamClient
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow event stream client", slog.String("remote", c.conn.RemoteAddr().String()))
		h.remove(c)
	}
}

// readPump drains the connection so pong and close frames are processed.
func (h *EventHub) readPump(c *streamClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()

	pongWait := h.pingInterval + h.pingInterval/2
	c.conn.SetReadLimit(maxClientMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Event stream client error", logging.Err(err))
			}
			return
		}
	}
}

func (h *EventHub) writePump(c *streamClient) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// originChecker allows requests without an Origin header, same-host
// requests, and the configured origins ("*" allows all).
func originChecker(allowed []string) func(*http.Request) bool {
	set := toSet(allowed)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[strings.TrimSuffix(origin, "/")] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
