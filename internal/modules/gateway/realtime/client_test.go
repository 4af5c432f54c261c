package realtime

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
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// newGatewayServer runs a stub gateway that hands each upgraded
// connection to fn.
func newGatewayServer(t *testing.T, fn func(sessionID string, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimPrefix(r.URL.Path, "/ws")
		sessionID = strings.TrimPrefix(sessionID, "/")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fn(sessionID, conn)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastOptions() Options {
	return Options{
		BaseDelay:  time.Millisecond,
		MaxRetries: 3,
		Heartbeat:  time.Hour,
	}
}

func TestConnectReceivesEvents(t *testing.T) {
	srv := newGatewayServer(t, func(sessionID string, conn *websocket.Conn) {
		assert.Equal(t, "sess-1", sessionID)
		_ = conn.WriteJSON(map[string]interface{}{
			"type":      "activity",
			"data":      map[string]string{"sessionId": sessionID, "message": "navigating"},
			"timestamp": "2024-03-10T10:00:00Z",
		})
		_ = conn.WriteJSON(map[string]interface{}{
			"type":      "status",
			"data":      map[string]string{"status": "running"},
			"timestamp": "2024-03-10T10:00:01Z",
		})
		time.Sleep(time.Second)
	})

	c := NewClient(srv.URL, fastOptions())
	require.NoError(t, c.Connect("sess-1"))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return len(c.History()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	assert.True(t, c.IsConnected())
	assert.Empty(t, c.LastError())

	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, "status", latest.Type)

	history := c.History()
	assert.Equal(t, "activity", history[0].Type)

	var data struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(history[0].Data, &data))
	assert.Equal(t, "navigating", data.Message)
}

func TestSharedModeSendsSubscribeFrame(t *testing.T) {
	frames := make(chan map[string]interface{}, 1)
	srv := newGatewayServer(t, func(sessionID string, conn *websocket.Conn) {
		assert.Empty(t, sessionID)
		var frame map[string]interface{}
		if err := conn.ReadJSON(&frame); err == nil {
			frames <- frame
		}
		time.Sleep(time.Second)
	})

	opts := fastOptions()
	opts.Mode = ModeShared
	c := NewClient(srv.URL, opts)
	require.NoError(t, c.Connect("sess-9"))
	defer c.Disconnect()

	select {
	case frame := <-frames:
		assert.Equal(t, "subscribe", frame["type"])
		assert.Equal(t, "sess-9", frame["sessionId"])
	case <-time.After(2 * time.Second):
		t.Fatal("no subscribe frame received")
	}
}

func TestNonJSONFrameWrappedAsText(t *testing.T) {
	srv := newGatewayServer(t, func(_ string, conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte("plain update"))
		time.Sleep(time.Second)
	})

	c := NewClient(srv.URL, fastOptions())
	require.NoError(t, c.Connect("sess-1"))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		_, ok := c.Latest()
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	latest, _ := c.Latest()
	assert.Equal(t, "text", latest.Type)
	assert.Equal(t, "plain update", latest.Raw)
}

func TestReconnectBudgetExhausted(t *testing.T) {
	srv := newGatewayServer(t, func(string, *websocket.Conn) {})
	srv.Close()

	c := NewClient(srv.URL, fastOptions())
	err := c.Connect("sess-1")
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return c.State() == StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	assert.False(t, c.IsReconnecting())
	assert.NotEmpty(t, c.LastError())
}

func TestReconnectAfterDrop(t *testing.T) {
	drops := 0
	srv := newGatewayServer(t, func(_ string, conn *websocket.Conn) {
		if drops == 0 {
			drops++
			_ = conn.Close()
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{"type": "status", "data": map[string]string{}})
		time.Sleep(time.Second)
	})

	c := NewClient(srv.URL, fastOptions())
	require.NoError(t, c.Connect("sess-1"))
	defer c.Disconnect()

	require.Eventually(t, func() bool {
		return c.IsConnected() && len(c.History()) > 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv := newGatewayServer(t, func(_ string, conn *websocket.Conn) {
		_ = conn.Close()
	})

	opts := fastOptions()
	opts.BaseDelay = time.Minute
	c := NewClient(srv.URL, opts)
	require.NoError(t, c.Connect("sess-1"))

	require.Eventually(t, func() bool {
		return c.IsReconnecting()
	}, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	assert.Equal(t, StateDisconnected, c.State())

	// The armed timer was cancelled; no attempt revives the client.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateDisconnected, c.State())
	assert.False(t, c.IsConnected())
}
