package trial

import (
	"time"

	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/trial", authMW)

	g.GET("/usage", h.usage)
	g.GET("/remaining", h.remaining)
}

// GET /trial/usage
func (h *Handler) usage(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	response.OK(c, h.ledger.Usage(userID, time.Now()))
}

// GET /trial/remaining
func (h *Handler) remaining(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	response.OK(c, gin.H{
		"remainingSeconds": h.ledger.RemainingSeconds(userID, time.Now()),
	})
}
