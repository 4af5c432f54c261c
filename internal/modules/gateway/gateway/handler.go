package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler upgrades HTTP requests to websocket subscriptions. Two styles
// are supported: a path-keyed endpoint that binds the connection to one
// session, and a shared endpoint where the client picks sessions with
// explicit subscribe frames.
type Handler struct {
	hub      *Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub, logger *zap.Logger, originAllowed func(string) bool) *Handler {
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				if originAllowed == nil {
					return true
				}
				return originAllowed(origin)
			},
		},
	}
}

// RegisterRoutes mounts the websocket endpoints at the engine root, not
// under the API prefix.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/ws", h.serveShared)
	r.GET("/ws/:sessionId", h.serveSession)
}

// GET /ws/:sessionId
func (h *Handler) serveSession(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("sessionId"))
	if sessionID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}
	h.serve(c, sessionID)
}

// GET /ws
func (h *Handler) serveShared(c *gin.Context) {
	h.serve(c, "")
}

func (h *Handler) serve(c *gin.Context, sessionID string) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
		}
		return
	}

	client := NewClient(conn)
	go client.writePump()

	if sessionID != "" {
		h.hub.Subscribe(sessionID, client)
	}

	h.readPump(client, sessionID == "")
}

// readPump consumes inbound frames until the connection dies. In shared
// mode a "subscribe" frame moves the client onto that session, leaving
// whichever one it was on before; "ping" frames are ignored in both
// modes, as is anything unrecognized.
func (h *Handler) readPump(client *Client, shared bool) {
	defer func() {
		h.hub.Unsubscribe(client)
		client.Close()
	}()

	client.conn.SetReadLimit(1 << 16)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}

		switch frame.Type {
		case "subscribe":
			if shared && strings.TrimSpace(frame.SessionID) != "" {
				h.hub.Resubscribe(strings.TrimSpace(frame.SessionID), client)
			}
		case "ping":
			// Keepalive only.
		}
	}
}

// RegisterStatsRoute exposes subscriber counts for diagnostics.
func RegisterStatsRoute(rg *gin.RouterGroup, hub *Hub) {
	rg.GET("/gateway/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"sessions":    hub.SessionCount(),
			"subscribers": hub.SubscriberCount(""),
		})
	})
}
