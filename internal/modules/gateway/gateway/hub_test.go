package gateway

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	open   bool
	frames [][]byte
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{open: true}
}

func (f *fakeSubscriber) Deliver(data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return true
}

func (f *fakeSubscriber) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeSubscriber) setOpen(open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = open
}

func (f *fakeSubscriber) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func TestBroadcastReachesOnlySessionSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)

	a1 := newFakeSubscriber()
	a2 := newFakeSubscriber()
	b := newFakeSubscriber()

	hub.Subscribe("session-a", a1)
	hub.Subscribe("session-a", a2)
	hub.Subscribe("session-b", b)

	hub.deliver("session-a", NewActivityEvent("session-a", "navigating", "info"))

	assert.Len(t, a1.received(), 1)
	assert.Len(t, a2.received(), 1)
	assert.Empty(t, b.received())
}

func TestBroadcastEnvelopeShape(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()
	hub.Subscribe("s1", sub)

	hub.deliver("s1", NewStatusEvent("s1", "running", "https://example.com"))

	frames := sub.received()
	require.Len(t, frames, 1)

	var decoded struct {
		Type string `json:"type"`
		Data struct {
			SessionID  string `json:"sessionId"`
			Status     string `json:"status"`
			CurrentURL string `json:"currentUrl"`
		} `json:"data"`
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &decoded))
	assert.Equal(t, "status", decoded.Type)
	assert.Equal(t, "s1", decoded.Data.SessionID)
	assert.Equal(t, "running", decoded.Data.Status)
	assert.Equal(t, "https://example.com", decoded.Data.CurrentURL)
	assert.NotEmpty(t, decoded.Timestamp)
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()

	hub.Subscribe("s1", sub)
	hub.Subscribe("s1", sub)

	assert.Equal(t, 1, hub.SubscriberCount("s1"))

	hub.deliver("s1", NewErrorEvent("s1", "boom"))
	assert.Len(t, sub.received(), 1)
}

func TestResubscribeLastSubscribeWins(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()

	hub.Resubscribe("session-a", sub)
	hub.Resubscribe("session-b", sub)

	assert.Equal(t, 0, hub.SubscriberCount("session-a"))
	assert.Equal(t, 1, hub.SubscriberCount("session-b"))
	assert.Equal(t, 1, hub.SessionCount())

	hub.deliver("session-a", NewActivityEvent("session-a", "stale", "info"))
	assert.Empty(t, sub.received())

	hub.deliver("session-b", NewActivityEvent("session-b", "fresh", "info"))
	assert.Len(t, sub.received(), 1)
}

func TestResubscribeToSameSessionIsStable(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()
	other := newFakeSubscriber()

	hub.Resubscribe("s1", sub)
	hub.Subscribe("s1", other)
	hub.Resubscribe("s1", sub)

	assert.Equal(t, 2, hub.SubscriberCount("s1"))
}

func TestUnsubscribeRemovesFromAllSessionsAndPrunes(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()
	other := newFakeSubscriber()

	hub.Subscribe("s1", sub)
	hub.Subscribe("s2", sub)
	hub.Subscribe("s2", other)

	hub.Unsubscribe(sub)

	assert.Equal(t, 0, hub.SubscriberCount("s1"))
	assert.Equal(t, 1, hub.SubscriberCount("s2"))
	assert.Equal(t, 1, hub.SessionCount())
}

func TestClosedSubscriberIsSkippedButNotRemoved(t *testing.T) {
	hub := NewHub(nil, nil)
	sub := newFakeSubscriber()
	hub.Subscribe("s1", sub)

	sub.setOpen(false)
	hub.deliver("s1", NewActivityEvent("s1", "step", "info"))

	assert.Empty(t, sub.received())
	// Removal happens only through Unsubscribe.
	assert.Equal(t, 1, hub.SubscriberCount("s1"))
}

func TestSubscriberCounts(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Subscribe("s1", newFakeSubscriber())
	hub.Subscribe("s1", newFakeSubscriber())
	hub.Subscribe("s2", newFakeSubscriber())

	assert.Equal(t, 2, hub.SubscriberCount("s1"))
	assert.Equal(t, 3, hub.SubscriberCount(""))
	assert.Equal(t, 2, hub.SessionCount())
}
