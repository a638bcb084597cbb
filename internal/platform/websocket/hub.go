package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Alert topics pushed to connected dashboards.
const (
	TopicOrders    = "orders"
	TopicInventory = "inventory"
	TopicExpiry    = "expiry"
)

// Event is an alert pushed to subscribed clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is a control frame sent by a client to manage subscriptions.
type ClientMessage struct {
	Action string `json:"action"` // subscribe | unsubscribe | ping
	Topic  string `json:"topic,omitempty"`
}

// Conn abstracts a websocket connection so the hub can be tested
// without a network.
type Conn interface {
	WriteMessage(data []byte) error
	Close() error
}

type client struct {
	id     string
	conn   Conn
	send   chan []byte
	topics map[string]bool
	mu     sync.RWMutex
}

func (c *client) subscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topics[topic]
}

// Hub fans alert events out to connected clients by topic.
type Hub struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	clients map[string]*client
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[string]*client)}
}

// Register adds a connection and returns its client id.
func (h *Hub) Register(conn Conn) string {
	c := &client{
		id:     uuid.New().String(),
		conn:   conn,
		send:   make(chan []byte, 64),
		topics: make(map[string]bool),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	go h.writePump(c)
	return c.id
}

// Unregister removes a client and closes its connection.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		close(c.send)
		_ = c.conn.Close()
	}
}

// Subscribe adds the client to a topic.
func (h *Hub) Subscribe(clientID, topic string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	c.topics[topic] = true
	c.mu.Unlock()
}

// Unsubscribe removes the client from a topic.
func (h *Hub) Unsubscribe(clientID, topic string) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()
}

// ProcessMessage handles a control frame from a client.
func (h *Hub) ProcessMessage(clientID string, raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Debug().Str("client_id", clientID).Msg("websocket: dropping malformed client message")
		return
	}

	switch msg.Action {
	case "subscribe":
		if msg.Topic != "" {
			h.Subscribe(clientID, msg.Topic)
		}
	case "unsubscribe":
		if msg.Topic != "" {
			h.Unsubscribe(clientID, msg.Topic)
		}
	case "ping":
		h.sendTo(clientID, []byte(`{"type":"pong"}`))
	}
}

// Broadcast delivers an event to every client subscribed to its topic.
func (h *Hub) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", event.Topic).Msg("websocket: marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.subscribed(event.Topic) {
			h.enqueue(c, payload)
		}
	}
}

// Publish sends raw bytes to every connected client regardless of
// subscriptions. It satisfies notification.Broadcaster.
func (h *Hub) Publish(data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TopicCount returns the number of clients subscribed to a topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		if c.subscribed(topic) {
			n++
		}
	}
	return n
}

func (h *Hub) sendTo(clientID string, data []byte) {
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if ok {
		h.enqueue(c, data)
	}
}

func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		// Slow consumer; drop the frame rather than block the hub.
		h.logger.Debug().Str("client_id", c.id).Msg("websocket: send buffer full, dropping frame")
	}
}

func (h *Hub) writePump(c *client) {
	for data := range c.send {
		if err := c.conn.WriteMessage(data); err != nil {
			return
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type gorillaConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (g *gorillaConn) WriteMessage(data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ws.WriteMessage(websocket.TextMessage, data)
}

func (g *gorillaConn) Close() error {
	return g.ws.Close()
}

// Handler upgrades the request and runs the read loop until the client
// disconnects.
func Handler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}

		conn := &gorillaConn{ws: ws}
		clientID := hub.Register(conn)
		defer hub.Unregister(clientID)

		hub.logger.Info().Str("client_id", clientID).Msg("websocket: client connected")

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				hub.logger.Info().Str("client_id", clientID).Msg("websocket: client disconnected")
				return nil
			}
			hub.ProcessMessage(clientID, raw)
		}
	}
}
