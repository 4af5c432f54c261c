package gateway

import (
	"context"
	"encoding/json"
	"sync"

	pkgredis "github.com/agentbrowse/core/internal/pkg/redis"
	"go.uber.org/zap"
)

// Subscriber is a delivery target for session events. Deliveries to a
// transport that is no longer open are skipped; removal from the
// registry only happens through Unsubscribe.
type Subscriber interface {
	Deliver(data []byte) bool
	IsOpen() bool
}

type broadcastMessage struct {
	sessionID string
	event     Event
	fromRelay bool
}

// Hub fans session events out to every subscriber of that session and
// relays broadcasts across instances through Redis.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[Subscriber]struct{}

	broadcast chan broadcastMessage

	rc     *pkgredis.Client
	logger *zap.Logger
}

func NewHub(rc *pkgredis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		sessions:  make(map[string]map[Subscriber]struct{}),
		broadcast: make(chan broadcastMessage, 256),
		rc:        rc,
		logger:    logger,
	}
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.broadcast:
			h.deliver(msg.sessionID, msg.event)

			if h.rc != nil && !msg.fromRelay {
				data, err := json.Marshal(relayMessage{SessionID: msg.sessionID, Event: msg.event})
				if err != nil {
					continue
				}
				if err := h.rc.Publish(ctx, redisChanSessions, string(data)); err != nil && h.logger != nil {
					h.logger.Warn("gateway publish failed", zap.Error(err))
				}
			}
		}
	}
}

// Subscribe attaches a subscriber to a session. Re-subscribing the same
// subscriber to the same session is a no-op.
func (h *Hub) Subscribe(sessionID string, sub Subscriber) {
	if sessionID == "" || sub == nil {
		return
	}
	h.subscribe(sessionID, sub)
}

func (h *Hub) subscribe(sessionID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
}

// Resubscribe moves a subscriber to a session, detaching it from
// whatever session it was on before. A subscriber belongs to at most
// one session; the last subscribe wins.
func (h *Hub) Resubscribe(sessionID string, sub Subscriber) {
	if sessionID == "" || sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for sid, set := range h.sessions {
		if sid == sessionID {
			continue
		}
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sid)
		}
	}

	set, ok := h.sessions[sessionID]
	if !ok {
		set = make(map[Subscriber]struct{})
		h.sessions[sessionID] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes a subscriber from every session it is attached to
// and prunes session sets that become empty.
func (h *Hub) Unsubscribe(sub Subscriber) {
	if sub == nil {
		return
	}
	h.removeSubscriber(sub)
}

func (h *Hub) removeSubscriber(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID, set := range h.sessions {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.sessions, sessionID)
		}
	}
}

// Broadcast queues an event for every subscriber of the session.
func (h *Hub) Broadcast(sessionID string, event Event) {
	if sessionID == "" {
		return
	}
	h.broadcast <- broadcastMessage{sessionID: sessionID, event: event}
}

// deliver marshals the event once and hands it to every open subscriber.
func (h *Hub) deliver(sessionID string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("gateway marshal failed", zap.Error(err))
		}
		return
	}

	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.sessions[sessionID]))
	for sub := range h.sessions[sessionID] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if !sub.IsOpen() {
			continue
		}
		sub.Deliver(data)
	}
}

// subscribeRedis listens for broadcasts from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanSessions)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg relayMessage
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			h.deliver(msg.SessionID, msg.Event)
		}
	}
}

// SubscriberCount returns the number of subscribers for one session, or
// across all sessions when sessionID is empty.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if sessionID != "" {
		return len(h.sessions[sessionID])
	}
	total := 0
	for _, set := range h.sessions {
		total += len(set)
	}
	return total
}

// SessionCount returns the number of sessions with at least one subscriber.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
