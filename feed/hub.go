package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 32
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type client struct {
	conn *websocket.Conn
	role string
	send chan []byte
}

// writePump owns all writes to the connection. It exits when send is closed
// or a write fails.
func (c *client) writePump(h *Hub) {
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			utils.ErrorLogger.WithError(err).WithField("role", c.role).Error("Dropping feed client")
			h.Unregister(c.conn)
			return
		}
	}
}

// Hub holds the staff websocket connections that receive order and payment
// events. Broadcast only queues; each client has its own writer goroutine.
type Hub struct {
	clients map[*websocket.Conn]*client
	mutex   sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *Hub) Register(conn *websocket.Conn, role string) {
	c := &client{conn: conn, role: role, send: make(chan []byte, sendBuffer)}
	h.mutex.Lock()
	h.clients[conn] = c
	h.mutex.Unlock()
	go c.writePump(h)
}

func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if c, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(c.send)
		conn.Close()
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Broadcast queues one message for every client without blocking. A client
// whose queue is full is too slow to keep up and gets dropped.
func (h *Hub) Broadcast(event string, data interface{}) {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		utils.ErrorLogger.WithError(err).WithField("event", event).Error("Error marshaling feed message")
		return
	}

	var slow []*websocket.Conn
	h.mutex.RLock()
	for conn, c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, conn)
		}
	}
	h.mutex.RUnlock()

	for _, conn := range slow {
		utils.ErrorLogger.WithField("event", event).Error("Feed client queue full, dropping it")
		h.Unregister(conn)
	}
}
