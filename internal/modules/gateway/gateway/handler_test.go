package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGatewayServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(hub, nil, nil).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dialWS(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForCount(t *testing.T, hub *Hub, sessionID string, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount(sessionID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %q never reached %d subscribers", sessionID, want)
}

func TestPathEndpointBindsToSession(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := newGatewayServer(t, hub)

	conn := dialWS(t, srv, "/ws/sess-1")
	waitForCount(t, hub, "sess-1", 1)

	hub.deliver("sess-1", NewActivityEvent("sess-1", "typing", "info"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var evt Event
	require.NoError(t, json.Unmarshal(data, &evt))
	assert.Equal(t, EventActivity, evt.Type)
}

func TestSharedEndpointLastSubscribeWins(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := newGatewayServer(t, hub)

	conn := dialWS(t, srv, "/ws")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "sessionId": "sess-a"}))
	waitForCount(t, hub, "sess-a", 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "sessionId": "sess-b"}))
	waitForCount(t, hub, "sess-b", 1)

	// Switching sessions detached the connection from the first one.
	assert.Equal(t, 0, hub.SubscriberCount("sess-a"))
	assert.Equal(t, 1, hub.SubscriberCount(""))

	// Frames for the old session must not reach the connection anymore.
	hub.deliver("sess-a", NewActivityEvent("sess-a", "stale", "info"))
	hub.deliver("sess-b", NewActivityEvent("sess-b", "fresh", "info"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var decoded struct {
		Type string       `json:"type"`
		Data ActivityData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, EventActivity, decoded.Type)
	assert.Equal(t, "sess-b", decoded.Data.SessionID)
	assert.Equal(t, "fresh", decoded.Data.Message)
}
