package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ChipaDevTeam/ChipaX/internal/domain"
	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Message is what clients send to change their subscriptions.
type Message struct {
	Type    string   `json:"type"` // subscribe | unsubscribe
	Symbols []string `json:"symbols"`
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	symbols map[domain.TradingPair]bool
}

// wants reports whether the client subscribed to symbol. No subscriptions
// means everything.
func (c *client) wants(symbol domain.TradingPair) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.symbols) == 0 || c.symbols[symbol]
}

// Hub streams exchange events to websocket clients.
type Hub struct {
	log     *zap.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
}

var _ port.Publisher = (*Hub)(nil)

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{log: logger, clients: make(map[*client]struct{})}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers events to subscribed clients. A client whose buffer is
// full is disconnected rather than blocking the exchange.
func (h *Hub) Publish(ctx context.Context, events ...port.Event) error {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		var slow []*client
		h.mu.RLock()
		for c := range h.clients {
			if !c.wants(e.Symbol) {
				continue
			}
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
		h.mu.RUnlock()
		for _, c := range slow {
			h.log.Warn("dropping slow websocket client", zap.String("remote", c.conn.RemoteAddr().String()))
			h.unregister(c)
		}
	}
	return nil
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Handle upgrades the request. Repeated ?symbol= parameters set the initial
// subscriptions.
func (h *Hub) Handle(c *gin.Context) {
	symbols := make(map[domain.TradingPair]bool)
	for _, s := range c.QueryArray("symbol") {
		pair, err := domain.ParseTradingPair(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		symbols[pair] = true
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	cl := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), symbols: symbols}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", zap.Int("clients", h.ClientCount()))

	go cl.writePump()
	go cl.readPump()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read", zap.Error(err))
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.log.Debug("bad websocket message", zap.Error(err))
			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range msg.Symbols {
		pair, err := domain.ParseTradingPair(s)
		if err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			c.symbols[pair] = true
		case "unsubscribe":
			delete(c.symbols, pair)
		}
	}
}
