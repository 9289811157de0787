package feed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-orders/utils"
)

func init() {
	utils.SilenceLoggers()
}

func serveHub(t *testing.T, hub *Hub) *httptest.Server {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn, "staff")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHubBroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()
	waitForClients(t, hub, 2)

	hub.Broadcast("order.created", map[string]interface{}{"order_id": 7})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg struct {
			Event string                 `json:"event"`
			Data  map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, "order.created", msg.Event)
		assert.Equal(t, float64(7), msg.Data["order_id"])
	}
}

func TestHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)

	conn := dial(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)

	// Nothing left to write to.
	hub.Broadcast("payment.paid", nil)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcastSkipsUnmarshalableData(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("order.updated", make(chan int))
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHubBroadcastDoesNotWaitForStalledClient(t *testing.T) {
	hub := NewHub()
	srv := serveHub(t, hub)

	stalled := dial(t, srv)
	defer stalled.Close()
	waitForClients(t, hub, 1)

	big := strings.Repeat("x", 256<<10)
	start := time.Now()
	for i := 0; i < 4*sendBuffer; i++ {
		hub.Broadcast("order.updated", big)
	}
	assert.Less(t, time.Since(start), time.Second, "broadcast only queues")

	waitForClients(t, hub, 0)
}
