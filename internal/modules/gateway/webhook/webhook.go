package webhook

import (
	"errors"
	"time"

	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActivityDTO is the engine's activity callback. Status defaults to
// "info" when omitted.
type ActivityDTO struct {
	SessionID string `json:"sessionId" binding:"required"`
	Message   string `json:"message"   binding:"required"`
	Status    string `json:"status"`
}

// ViewportUpdateDTO is the engine's page navigation callback.
type ViewportUpdateDTO struct {
	SessionID  string `json:"sessionId"  binding:"required"`
	CurrentURL string `json:"currentUrl" binding:"required"`
}

var errSessionNotFound = errors.New("session not found")

// Service persists engine callbacks and fans them out to subscribers.
type Service struct {
	db     *gorm.DB
	hub    *gateway.Hub
	logger *zap.Logger
}

func NewService(db *gorm.DB, hub *gateway.Hub, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, hub: hub, logger: logger}
}

func (s *Service) sessionExists(sessionID string) error {
	var count int64
	if err := s.db.Model(&models.SessionModel{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return errSessionNotFound
	}
	return nil
}

// RecordActivity appends an activity line and broadcasts it.
func (s *Service) RecordActivity(dto *ActivityDTO) (*models.ActivityLogModel, error) {
	if err := s.sessionExists(dto.SessionID); err != nil {
		return nil, err
	}

	status := models.ActivityStatus(dto.Status)
	switch status {
	case models.ActivityInfo, models.ActivitySuccess, models.ActivityWarning, models.ActivityError:
	default:
		status = models.ActivityInfo
	}

	log := models.ActivityLogModel{
		SessionID: dto.SessionID,
		Message:   dto.Message,
		Status:    status,
		Timestamp: time.Now(),
	}
	if err := s.db.Create(&log).Error; err != nil {
		return nil, err
	}

	s.hub.Broadcast(dto.SessionID, gateway.NewActivityEvent(dto.SessionID, dto.Message, string(status)))
	return &log, nil
}

// RecordViewportUpdate stores the page URL the browser navigated to and
// broadcasts a status event carrying it.
func (s *Service) RecordViewportUpdate(dto *ViewportUpdateDTO) error {
	if err := s.sessionExists(dto.SessionID); err != nil {
		return err
	}

	err := s.db.Model(&models.SessionModel{}).
		Where("id = ?", dto.SessionID).
		Update("current_url", dto.CurrentURL).Error
	if err != nil {
		return err
	}

	s.hub.Broadcast(dto.SessionID, gateway.NewStatusEvent(dto.SessionID, "", dto.CurrentURL))
	return nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the engine callback endpoints. They are not
// under the authenticated API group; the engine runs inside the trust
// boundary and retries are absorbed by the idempotence middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/webhook")

	g.POST("/activity", h.activity)
	g.POST("/viewport-update", h.viewportUpdate)
}

// POST /webhook/activity
func (h *Handler) activity(c *gin.Context) {
	var dto ActivityDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "sessionId and message are required")
		return
	}

	log, err := h.svc.RecordActivity(&dto)
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, log)
}

// POST /webhook/viewport-update
func (h *Handler) viewportUpdate(c *gin.Context) {
	var dto ViewportUpdateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "sessionId and currentUrl are required")
		return
	}

	if err := h.svc.RecordViewportUpdate(&dto); err != nil {
		if errors.Is(err, errSessionNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"updated": true})
}
