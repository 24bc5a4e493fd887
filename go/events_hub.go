package tablesideserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Apurer/tableside/internal/events"
	"github.com/Apurer/tableside/internal/facade"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 512
)

// Message is one frame on the event stream.
type Message struct {
	ID    string `json:"id"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EventHub relays notifier events to websocket clients. Publishers never block on a
// client: a client whose buffer is full is disconnected.
type EventHub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	unsubscribe []func()
}

type wsClient struct {
	conn *websocket.Conn
	user string
	send chan []byte
}

type HubOption func(*EventHub)

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *EventHub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAllowedOrigins restricts upgrades to the listed origins. An empty list accepts any.
func WithAllowedOrigins(origins ...string) HubOption {
	return func(h *EventHub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			_, ok := allowed[r.Header.Get("Origin")]
			return ok
		}
	}
}

// NewEventHub subscribes to every change stream of controller.
func NewEventHub(controller *facade.Controller, opts ...HubOption) *EventHub {
	h := &EventHub{
		logger:  slog.Default(),
		clients: map[*wsClient]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.unsubscribe = []func(){
		controller.OnTableChanged(func(v facade.TableView) {
			h.broadcast(string(events.ChannelTableChanged), v)
		}),
		controller.OnTableListChanged(func(list []facade.TableView) {
			h.broadcast(string(events.ChannelTableListChanged), list)
		}),
		controller.OnOrderChanged(func(v facade.OrderView) {
			h.broadcast(string(events.ChannelOrderChanged), v)
		}),
	}
	return h
}

// Close drops the subscriptions and disconnects every client.
func (h *EventHub) Close() {
	for _, stop := range h.unsubscribe {
		stop()
	}
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.remove(c)
	}
}

// ClientCount reports how many websocket clients are connected.
func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Get /ws/events
func (h *EventHub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.LogAttrs(c.Request.Context(), slog.LevelWarn, "websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{conn: conn, user: actingUser(c), send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "event stream client connected", slog.String("user.id", client.user))

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *EventHub) broadcast(event string, data any) {
	payload, err := json.Marshal(Message{ID: uuid.NewString(), Event: event, Data: data})
	if err != nil {
		h.logger.Error("failed to encode event", slog.String("event", event), slog.String("error", err.Error()))
		return
	}
	var slow []*wsClient
	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.logger.Warn("disconnecting slow event stream client", slog.String("user.id", c.user))
		h.remove(c)
	}
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// readLoop discards client frames and notices disconnects.
func (h *EventHub) readLoop(c *wsClient) {
	defer h.remove(c)
	c.conn.SetReadLimit(maxReadBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		h.remove(c)
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
