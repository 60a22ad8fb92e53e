package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ChipaDevTeam/ChipaX/internal/port"
)

func dial(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", h.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev map[string]any
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestHubFiltersBySymbol(t *testing.T) {
	h := NewHub(zaptest.NewLogger(t))
	conn := dial(t, h, "?symbol=ETH/USDT")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	ctx := context.Background()
	require.NoError(t, h.Publish(ctx,
		port.Event{Type: port.EventTrade, Symbol: "BTC/USDT", Payload: "skip"},
		port.Event{Type: port.EventTrade, Symbol: "ETH/USDT", Payload: "keep"},
	))

	ev := readEvent(t, conn)
	assert.Equal(t, "ETH/USDT", ev["symbol"])
	assert.Equal(t, "keep", ev["payload"])
}

func TestHubSubscribeMessage(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "?symbol=ETH/USDT")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe", Symbols: []string{"BTC/USDT"}}))
	require.NoError(t, conn.WriteJSON(Message{Type: "unsubscribe", Symbols: []string{"ETH/USDT"}}))

	// The subscription change is applied asynchronously; publish until it lands.
	ctx := context.Background()
	require.Eventually(t, func() bool {
		for c := range snapshotClients(h) {
			if c.wants("BTC/USDT") && !c.wants("ETH/USDT") {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, h.Publish(ctx, port.Event{Type: port.EventOrderbook, Symbol: "BTC/USDT", Payload: 1}))
	ev := readEvent(t, conn)
	assert.Equal(t, "orderbook", ev["type"])
}

func TestHubCloseDisconnects(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	h.Close()
	assert.Equal(t, 0, h.ClientCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func snapshotClients(h *Hub) map[*client]struct{} {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[*client]struct{}, len(h.clients))
	for c := range h.clients {
		out[c] = struct{}{}
	}
	return out
}
