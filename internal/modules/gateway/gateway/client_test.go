package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newConnPair upgrades one connection against an httptest server and
// returns the server side of it.
func newConnPair(t *testing.T) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	serverConn := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serverConn <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	dialed, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { dialed.Close() })

	return <-serverConn
}

func TestDeliverAfterCloseReturnsFalse(t *testing.T) {
	client := NewClient(newConnPair(t))

	assert.True(t, client.Deliver([]byte(`{"type":"activity"}`)))
	client.Close()

	assert.False(t, client.IsOpen())
	assert.False(t, client.Deliver([]byte(`{"type":"activity"}`)))
}

func TestCloseIsIdempotent(t *testing.T) {
	client := NewClient(newConnPair(t))

	client.Close()
	client.Close()

	assert.False(t, client.IsOpen())
}

// Concurrent deliveries racing a close must never panic on the send
// channel; the channel only closes under the same mutex Deliver holds.
func TestConcurrentDeliverAndClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		client := NewClient(newConnPair(t))

		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					client.Deliver([]byte(`{"type":"status"}`))
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.Close()
		}()
		wg.Wait()

		assert.False(t, client.IsOpen())
	}
}
