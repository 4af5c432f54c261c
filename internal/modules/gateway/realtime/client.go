package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Mode selects which gateway endpoint the client talks to.
type Mode string

const (
	// ModePerSession dials /ws/<sessionId>; the subscription is implied
	// by the path.
	ModePerSession Mode = "per-session"
	// ModeShared dials /ws and picks sessions with explicit subscribe
	// frames after the socket opens.
	ModeShared Mode = "shared"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReconnecting State = "reconnecting"
)

const (
	defaultBaseDelay    = 500 * time.Millisecond
	defaultMaxDelay     = 10 * time.Second
	defaultMaxRetries   = 10
	defaultHeartbeat    = 25 * time.Second
	defaultHistoryLimit = 200
)

// Message is one inbound gateway frame. Frames that fail to decode as
// JSON are preserved with Type "text" and the raw payload in Raw.
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Raw       string          `json:"raw,omitempty"`
}

// Options tunes client behavior. Zero values fall back to production
// defaults; BaseDelay exists mostly so tests can run fast.
type Options struct {
	Mode         Mode
	Logger       *zap.Logger
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	MaxRetries   int
	Heartbeat    time.Duration
	HistoryLimit int
}

// Client maintains a websocket subscription to the gateway and
// transparently reconnects with exponential backoff when the link
// drops. Changing session or mode tears the connection down fully.
type Client struct {
	baseURL string
	logger  *zap.Logger

	mode         Mode
	baseDelay    time.Duration
	maxDelay     time.Duration
	maxRetries   int
	heartbeat    time.Duration
	historyLimit int

	mu             sync.Mutex
	sessionID      string
	state          State
	conn           *websocket.Conn
	generation     int
	attempts       int
	suppress       bool
	lastErr        string
	history        []Message
	reconnectTimer *time.Timer

	writeMu sync.Mutex
}

func NewClient(baseURL string, opts Options) *Client {
	mode := opts.Mode
	if mode == "" {
		mode = ModePerSession
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = defaultBaseDelay
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		logger:       logger,
		mode:         mode,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
		maxRetries:   maxRetries,
		heartbeat:    heartbeat,
		historyLimit: historyLimit,
		state:        StateDisconnected,
	}
}

// Connect binds the client to a session and dials the gateway. Any
// existing connection is torn down first, even for the same session.
func (c *Client) Connect(sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("session id is required")
	}

	c.mu.Lock()
	c.teardownLocked()
	c.sessionID = sessionID
	c.suppress = false
	c.attempts = 0
	c.mu.Unlock()

	return c.dial()
}

// SetMode switches endpoint styles. A live connection is torn down; the
// caller reconnects explicitly.
func (c *Client) SetMode(mode Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode == c.mode {
		return
	}
	c.teardownLocked()
	c.mode = mode
	c.state = StateDisconnected
}

// Disconnect closes the connection and suppresses any pending or future
// reconnect until the next Connect call.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suppress = true
	c.teardownLocked()
	c.state = StateDisconnected
}

// teardownLocked invalidates the current connection generation, stops a
// pending reconnect timer, and closes the socket.
func (c *Client) teardownLocked() {
	c.generation++
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if c.mode == ModeShared {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	} else {
		u.Path = strings.TrimRight(u.Path, "/") + "/ws/" + c.sessionID
	}
	return u.String(), nil
}

func (c *Client) dial() error {
	c.mu.Lock()
	if c.suppress {
		c.mu.Unlock()
		return nil
	}
	if c.attempts == 0 {
		c.state = StateConnecting
	}
	gen := c.generation
	sessionID := c.sessionID
	mode := c.mode
	c.mu.Unlock()

	target, err := c.endpoint()
	if err != nil {
		c.handleDialFailure(gen, err)
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		c.handleDialFailure(gen, err)
		return err
	}

	c.mu.Lock()
	if gen != c.generation || c.suppress {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	c.conn = conn
	c.state = StateOpen
	c.attempts = 0
	c.lastErr = ""
	c.mu.Unlock()

	if mode == ModeShared {
		c.sendFrame(conn, map[string]interface{}{
			"type":      "subscribe",
			"sessionId": sessionID,
		})
	}

	go c.readLoop(conn, gen)
	go c.heartbeatLoop(conn, gen)

	c.logger.Debug("gateway connected", zap.String("session", sessionID))
	return nil
}

func (c *Client) handleDialFailure(gen int, err error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.lastErr = err.Error()
	c.mu.Unlock()
	c.scheduleReconnect(gen)
}

// scheduleReconnect arms the backoff timer. Delay doubles per attempt
// from the base, capped at the max; after the retry budget is exhausted
// the client settles in disconnected.
func (c *Client) scheduleReconnect(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.generation || c.suppress {
		return
	}

	c.attempts++
	if c.attempts > c.maxRetries {
		c.state = StateDisconnected
		c.logger.Warn("gateway reconnect budget exhausted",
			zap.String("session", c.sessionID),
			zap.Int("attempts", c.attempts-1),
		)
		return
	}

	delay := c.baseDelay << (c.attempts - 1)
	if delay > c.maxDelay {
		delay = c.maxDelay
	}

	c.state = StateReconnecting
	c.logger.Debug("gateway reconnect scheduled",
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay),
	)

	c.reconnectTimer = time.AfterFunc(delay, func() {
		_ = c.dial()
	})
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleConnLoss(conn, gen, err)
			return
		}

		var msg Message
		if jsonErr := json.Unmarshal(data, &msg); jsonErr != nil || msg.Type == "" {
			msg = Message{Type: "text", Raw: string(data)}
		}

		c.mu.Lock()
		if gen != c.generation {
			c.mu.Unlock()
			return
		}
		c.history = append(c.history, msg)
		if len(c.history) > c.historyLimit {
			c.history = c.history[len(c.history)-c.historyLimit:]
		}
		c.mu.Unlock()
	}
}

func (c *Client) handleConnLoss(conn *websocket.Conn, gen int, err error) {
	_ = conn.Close()

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	if c.conn == conn {
		c.conn = nil
	}
	c.lastErr = err.Error()
	suppress := c.suppress
	c.mu.Unlock()

	if suppress {
		return
	}
	c.scheduleReconnect(gen)
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, gen int) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		stale := gen != c.generation || c.conn != conn
		c.mu.Unlock()
		if stale {
			return
		}
		c.sendFrame(conn, map[string]interface{}{
			"type": "ping",
			"t":    time.Now().UnixMilli(),
		})
	}
}

func (c *Client) sendFrame(conn *websocket.Conn, frame interface{}) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// IsReconnecting reports whether a backoff retry is pending.
func (c *Client) IsReconnecting() bool {
	return c.State() == StateReconnecting
}

// LastError returns the most recent dial or read error as text, empty
// while the connection is healthy.
func (c *Client) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Latest returns the most recently received message.
func (c *Client) Latest() (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return Message{}, false
	}
	return c.history[len(c.history)-1], true
}

// History returns a copy of the retained messages, oldest first.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}
