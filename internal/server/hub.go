package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/metrics"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// sendBuffer is how many messages a client may fall behind before it is
// dropped.
const sendBuffer = 16

// client is one websocket connection. Only its writer goroutine writes to
// conn; everything else hands messages over on send.
type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub tracks websocket clients. Broadcast never blocks on a connection: a
// client whose buffer is full is disconnected.
type Hub struct {
	log *logrus.Logger

	mu      sync.Mutex
	clients map[*client]bool
}

func NewHub(log *logrus.Logger) *Hub {
	return &Hub{log: log, clients: make(map[*client]bool)}
}

// ServeWS upgrades the request and keeps the connection registered until the
// client goes away.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	cl := &client{conn: conn, send: make(chan Message, sendBuffer)}
	h.add(cl)
	defer h.remove(cl)
	go h.writePump(cl)

	h.log.WithField("remote", conn.RemoteAddr().String()).Info("New WebSocket client connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

// writePump drains cl.send onto the connection. It closes the connection once
// the hub closes the channel or a write fails.
func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()

	for msg := range cl.send {
		cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := cl.conn.WriteJSON(msg); err != nil {
			h.log.WithError(err).Debug("WebSocket write error")
			h.remove(cl)
			return
		}
	}
	cl.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
		time.Now().Add(writeWait))
}

func (h *Hub) add(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl] = true
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// remove unregisters cl and closes its send channel. Safe to call twice.
func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(cl)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// drop must be called with h.mu held.
func (h *Hub) drop(cl *client) {
	if h.clients[cl] {
		delete(h.clients, cl)
		close(cl.send)
	}
}

// Broadcast queues msg for every client and drops clients that have fallen
// behind.
func (h *Hub) Broadcast(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.log.Debug("WebSocket client too slow, disconnecting")
			h.drop(cl)
		}
	}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Each writer sends a going-away frame before
// closing its connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.drop(cl)
	}
	metrics.WebsocketClients.Set(0)
}
