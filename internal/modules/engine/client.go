package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// StartRequest is the payload for POST /start-session. Task mirrors
// TaskDescription for older engine builds that still read the short key.
type StartRequest struct {
	SessionID       string `json:"sessionId"`
	TaskDescription string `json:"taskDescription"`
	Task            string `json:"task"`
	Model           string `json:"model,omitempty"`
}

// UpdateRequest is the payload for POST /update-session.
type UpdateRequest struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Client talks to the browser automation engine over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Start asks the engine to launch a browser session.
func (c *Client) Start(ctx context.Context, sessionID, taskDescription, model string) error {
	return c.post(ctx, "/start-session", StartRequest{
		SessionID:       sessionID,
		TaskDescription: taskDescription,
		Task:            taskDescription,
		Model:           model,
	})
}

// UpdateStatus tells the engine to pause, resume, or finish a session.
// Accepted statuses are "paused", "running", and "completed".
func (c *Client) UpdateStatus(ctx context.Context, sessionID, status string) error {
	return c.post(ctx, "/update-session", UpdateRequest{
		SessionID: sessionID,
		Status:    status,
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal engine request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build engine request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("engine request failed", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("engine request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("engine rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return fmt.Errorf("engine request %s: HTTP %d", path, resp.StatusCode)
	}
	return nil
}
