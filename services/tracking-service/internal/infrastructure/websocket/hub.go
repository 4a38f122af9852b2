package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/quangdang46/shipment-tracker/shared/contracts"
	"github.com/quangdang46/shipment-tracker/shared/logging"
	"github.com/quangdang46/shipment-tracker/shared/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Frame is one message to push: a kind and its JSON payload
type Frame struct {
	Kind    string
	Payload interface{}
}

// Hub fans session and shipment changes out to websocket clients. Every
// client gets the snapshot frames on connect, then each broadcast in order.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*client
	seq        uint64
	maxClients int
	snapshot   func() []Frame
	closed     bool
	logger     *logging.Logger
	metrics    *metrics.Metrics
}

func NewHub(maxClients int, logger *logging.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Hub{
		clients:    make(map[string]*client),
		maxClients: maxClients,
		logger:     logger.WithField("component", "ws_hub"),
		metrics:    m,
	}
}

// SetSnapshot sets the frames sent to each new client before any broadcast
func (h *Hub) SetSnapshot(fn func() []Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

func (h *Hub) encodeLocked(kind string, payload interface{}) ([]byte, error) {
	h.seq++
	return json.Marshal(contracts.WSMessage[interface{}]{
		Type:      kind,
		Version:   contracts.WSSchemaVersion,
		Seq:       h.seq,
		EmittedAt: time.Now().UTC(),
		Data:      payload,
	})
}

// Broadcast sends a frame to every client. Clients whose buffer is full
// are disconnected.
func (h *Hub) Broadcast(kind string, payload interface{}) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	data, err := h.encodeLocked(kind, payload)
	if err != nil {
		h.mu.Unlock()
		h.logger.WithError(err).WithField("kind", kind).Error("Failed to encode websocket frame")
		return
	}

	var slow []*client
	for _, c := range h.clients {
		if !c.enqueue(data) {
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.WithField("client_id", c.id).Warn("Dropping slow websocket client")
		h.remove(c)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := h.maxClients > 0 && len(h.clients) >= h.maxClients
	closed := h.closed
	h.mu.RUnlock()
	if closed || full {
		http.Error(w, "websocket capacity reached", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
	}
	if err := h.add(c); err != nil {
		h.logger.WithError(err).Warn("Rejecting websocket client")
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("hub is closed")
	}
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		return fmt.Errorf("maximum clients reached")
	}

	// snapshot frames go out under the lock so no broadcast can overtake them
	if h.snapshot != nil {
		for _, f := range h.snapshot() {
			data, err := h.encodeLocked(f.Kind, f.Payload)
			if err != nil {
				return err
			}
			c.enqueue(data)
		}
	}

	h.clients[c.id] = c
	h.metrics.AddWebSocketClients(1)
	h.logger.WithField("client_id", c.id).Debug("Websocket client connected")
	return nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c.id]
	if ok {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	if ok {
		c.close()
		h.metrics.AddWebSocketClients(-1)
		h.logger.WithField("client_id", c.id).Debug("Websocket client disconnected")
	}
}

// Close disconnects every client and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

type client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	hub       *Hub
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
	})
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.remove(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// readPump only handles control frames and client pings
func (c *client) readPump() {
	defer c.hub.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithField("client_id", c.id).Warn("Websocket read error")
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != "ping" {
			continue
		}

		c.hub.mu.Lock()
		data, err := c.hub.encodeLocked("pong", map[string]int64{"timestamp": time.Now().Unix()})
		c.hub.mu.Unlock()
		if err == nil {
			c.enqueue(data)
		}
	}
}
