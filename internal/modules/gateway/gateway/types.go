package gateway

import "time"

const (
	EventActivity = "activity"
	EventStatus   = "status"
	EventError    = "error"

	redisChanSessions = "ab:gateway:sessions"
)

// Event is the envelope delivered to every subscriber of a session.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ActivityData is the payload of an "activity" event.
type ActivityData struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

// StatusData is the payload of a "status" event. Absent fields mean
// "unchanged" for the consumer.
type StatusData struct {
	SessionID  string `json:"sessionId"`
	Status     string `json:"status,omitempty"`
	CurrentURL string `json:"currentUrl,omitempty"`
}

// ErrorData is the payload of an "error" event.
type ErrorData struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

func NewActivityEvent(sessionID, message, status string) Event {
	return Event{
		Type:      EventActivity,
		Data:      ActivityData{SessionID: sessionID, Message: message, Status: status},
		Timestamp: time.Now().UTC(),
	}
}

func NewStatusEvent(sessionID, status, currentURL string) Event {
	return Event{
		Type:      EventStatus,
		Data:      StatusData{SessionID: sessionID, Status: status, CurrentURL: currentURL},
		Timestamp: time.Now().UTC(),
	}
}

func NewErrorEvent(sessionID, message string) Event {
	return Event{
		Type:      EventError,
		Data:      ErrorData{SessionID: sessionID, Message: message},
		Timestamp: time.Now().UTC(),
	}
}

// inboundFrame is what clients may send upstream. Only "subscribe" and
// "ping" are recognized, everything else is ignored.
type inboundFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// relayMessage carries a broadcast between server instances via Redis.
type relayMessage struct {
	SessionID string `json:"sessionId"`
	Event     Event  `json:"event"`
}
