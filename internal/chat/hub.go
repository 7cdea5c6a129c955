package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 64 * 1024
	sendBuffer      = 32
	eventBuffer     = 16

	disconnectTimeout = 5 * time.Second
)

// inboundFrame is a client frame. Data stays raw until the event is known.
type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	sid    string
	conn   *websocket.Conn
	send   chan []byte
	events chan inboundFrame
	done   chan struct{}
}

// Hub accepts WebSocket connections and fans events out to them.
// Each connection has a reader goroutine, a worker that handles its events in
// arrival order, and a writer goroutine. The reader only reads, so keepalive
// pongs are seen while an answer is being produced. Fan-out never blocks: a
// client whose buffer is full misses the event.
type Hub struct {
	controller *Controller
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	pongWait   time.Duration

	mu      sync.RWMutex
	clients map[string]*client
}

var _ Broadcaster = (*Hub)(nil)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithKeepalive sets how long a connection may stay silent before it is
// dropped. Pings go out at nine tenths of d.
func WithKeepalive(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.pongWait = d
		}
	}
}

// NewHub creates a hub and the controller it drives.
// allowedOrigins restricts browser origins; empty or "*" allows any.
func NewHub(answerer Answerer, store Store, allowedOrigins []string, logger *slog.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		logger:   logger,
		pongWait: defaultPongWait,
		clients:  make(map[string]*client),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	h.controller = NewController(answerer, store, h, logger)
	return h
}

// Controller returns the controller driven by this hub.
func (h *Hub) Controller() *Controller { return h.controller }

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		sid:    uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		events: make(chan inboundFrame, eventBuffer),
		done:   make(chan struct{}),
	}

	h.register(c)
	h.controller.Connect(c.sid)

	ctx, stop := context.WithCancel(r.Context())
	var worker sync.WaitGroup
	worker.Add(1)
	go func() {
		defer worker.Done()
		h.handleEvents(ctx, c)
	}()

	go h.writePump(c)
	h.readPump(c)

	// The in-flight answer is abandoned so its turn cannot land after the
	// history is deleted.
	stop()
	close(c.events)
	worker.Wait()

	h.unregister(c)
	close(c.done)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), disconnectTimeout)
	defer cancel()
	_ = h.controller.Disconnect(ctx, c.sid)
}

// Broadcast queues ev for every connected client.
func (h *Hub) Broadcast(ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, ev.Name, msg)
	}
}

// Send queues ev for sid only. Unknown sessions are ignored.
func (h *Hub) Send(sid string, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", ev.Name, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if c, ok := h.clients[sid]; ok {
		h.enqueue(c, ev.Name, msg)
	}
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close drops every open connection. Each reader then runs its disconnect path.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) enqueue(c *client, name string, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("Dropping event for slow client", "session", c.sid, "event", name)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.sid] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.sid)
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		var frame inboundFrame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read failed", "session", c.sid, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))

		select {
		case c.events <- frame:
		default:
			h.logger.Warn("Dropping event, session is busy", "session", c.sid, "event", frame.Event)
		}
	}
}

func (h *Hub) handleEvents(ctx context.Context, c *client) {
	for frame := range c.events {
		if ctx.Err() != nil {
			continue
		}
		h.dispatch(ctx, c.sid, frame)
	}
}

func (h *Hub) dispatch(ctx context.Context, sid string, frame inboundFrame) {
	var err error
	switch frame.Event {
	case EventSendMessage:
		var text string
		if jsonErr := json.Unmarshal(frame.Data, &text); jsonErr != nil {
			h.logger.Warn("Ignoring send_message without text", "session", sid, "error", jsonErr)
			return
		}
		err = h.controller.Message(ctx, sid, text)
	case EventReset:
		err = h.controller.Reset(ctx, sid)
	default:
		h.logger.Warn("Ignoring unknown event", "session", sid, "event", frame.Event)
		return
	}
	if err != nil {
		h.logger.Warn("Event rejected", "session", sid, "event", frame.Event, "error", err)
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			set[strings.ToLower(o)] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}
