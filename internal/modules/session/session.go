package session

import (
	"context"
	"errors"
	"time"

	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/modules/engine"
	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/modules/trial"
	"github.com/agentbrowse/core/internal/pkg/pagination"
	"github.com/agentbrowse/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CreateSessionDTO struct {
	TaskDescription string `json:"taskDescription" binding:"required"`
	Model           string `json:"model"`
}

type UpdateStatusDTO struct {
	Status models.SessionStatus `json:"status" binding:"required"`
}

var (
	errSessionNotFound  = errors.New("session not found")
	errBadTransition    = errors.New("invalid status transition")
	errNotActionable    = errors.New("session is not in an actionable state")
	errUnknownStatus    = errors.New("unknown session status")
	actionableStatuses  = []models.SessionStatus{models.SessionRunning, models.SessionPaused}
	requestableStatuses = map[models.SessionStatus]bool{
		models.SessionPaused:    true,
		models.SessionRunning:   true,
		models.SessionCompleted: true,
	}
)

type Service struct {
	db     *gorm.DB
	engine *engine.Client
	hub    *gateway.Hub
	ledger *trial.Ledger
	logger *zap.Logger
}

func NewService(db *gorm.DB, eng *engine.Client, hub *gateway.Hub, ledger *trial.Ledger, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, engine: eng, hub: hub, ledger: ledger, logger: logger}
}

// isTrialUser reports whether usage must be charged to the trial ledger.
func (s *Service) isTrialUser(userID string, now time.Time) bool {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return true
	}
	if user.Plan == "free" || user.Plan == "" {
		return true
	}
	return user.SubscriptionEnd != nil && user.SubscriptionEnd.Before(now)
}

// Create provisions a session row, charges the trial ledger for free
// users, and asks the engine to start the browser. An engine failure
// still answers the caller: the session is returned in failed state.
func (s *Service) Create(ctx context.Context, userID string, dto *CreateSessionDTO) (*models.SessionModel, error) {
	now := time.Now()

	if s.isTrialUser(userID, now) {
		if _, err := s.ledger.BeginSession(userID, now); err != nil {
			return nil, err
		}
	}

	sess := models.SessionModel{
		UserID:          userID,
		TaskDescription: dto.TaskDescription,
		Status:          models.SessionPending,
		Model:           dto.Model,
		StartedAt:       &now,
	}
	if err := s.db.Create(&sess).Error; err != nil {
		return nil, err
	}
	s.appendActivity(sess.ID, "Session created", models.ActivityInfo)

	if err := s.engine.Start(ctx, sess.ID, dto.TaskDescription, dto.Model); err != nil {
		s.logger.Warn("engine start failed",
			zap.String("session", sess.ID),
			zap.Error(err),
		)
		s.markFailed(&sess, "Failed to start browser session")
		return &sess, nil
	}

	sess.Status = models.SessionRunning
	if err := s.db.Model(&sess).Update("status", models.SessionRunning).Error; err != nil {
		return nil, err
	}
	s.appendActivity(sess.ID, "Browser session started", models.ActivitySuccess)
	s.hub.Broadcast(sess.ID, gateway.NewStatusEvent(sess.ID, string(models.SessionRunning), ""))
	return &sess, nil
}

// markFailed downgrades a session after an upstream failure and notifies
// subscribers.
func (s *Service) markFailed(sess *models.SessionModel, reason string) {
	sess.Status = models.SessionFailed
	now := time.Now()
	sess.EndedAt = &now
	if err := s.db.Model(sess).Updates(map[string]interface{}{
		"status":   models.SessionFailed,
		"ended_at": now,
	}).Error; err != nil {
		s.logger.Error("session downgrade failed", zap.String("session", sess.ID), zap.Error(err))
	}

	if s.isTrialUser(sess.UserID, now) {
		s.ledger.EndSession(sess.UserID, now)
	}

	s.appendActivity(sess.ID, reason, models.ActivityError)
	s.hub.Broadcast(sess.ID, gateway.NewErrorEvent(sess.ID, reason))
	s.hub.Broadcast(sess.ID, gateway.NewStatusEvent(sess.ID, string(models.SessionFailed), ""))
}

// UpdateStatus applies a user-requested transition (pause, resume, or
// stop) and forwards it to the engine. Engine failures downgrade the
// session to failed but still answer the caller.
func (s *Service) UpdateStatus(ctx context.Context, userID, sessionID string, target models.SessionStatus) (*models.SessionModel, error) {
	if !requestableStatuses[target] {
		return nil, errUnknownStatus
	}

	sess, err := s.get(userID, sessionID)
	if err != nil {
		return nil, err
	}

	if !isActionable(sess.Status) {
		return nil, errNotActionable
	}
	if sess.Status == target {
		return sess, nil
	}
	if target == models.SessionRunning && sess.Status != models.SessionPaused {
		return nil, errBadTransition
	}

	if err := s.engine.UpdateStatus(ctx, sess.ID, string(target)); err != nil {
		s.logger.Warn("engine status update failed",
			zap.String("session", sess.ID),
			zap.String("target", string(target)),
			zap.Error(err),
		)
		s.markFailed(sess, "Failed to update browser session")
		return sess, nil
	}

	now := time.Now()
	updates := map[string]interface{}{"status": target}
	if target == models.SessionCompleted {
		updates["ended_at"] = now
		if sess.StartedAt != nil {
			updates["duration_seconds"] = int(now.Sub(*sess.StartedAt).Seconds())
		}
		if s.isTrialUser(userID, now) {
			s.ledger.EndSession(userID, now)
		}
	}
	if err := s.db.Model(sess).Updates(updates).Error; err != nil {
		return nil, err
	}
	sess.Status = target
	if target == models.SessionCompleted {
		sess.EndedAt = &now
		if sess.StartedAt != nil {
			sess.DurationSeconds = int(now.Sub(*sess.StartedAt).Seconds())
		}
	}

	s.appendActivity(sess.ID, transitionMessage(target), models.ActivityInfo)
	s.hub.Broadcast(sess.ID, gateway.NewStatusEvent(sess.ID, string(target), ""))
	return sess, nil
}

func transitionMessage(target models.SessionStatus) string {
	switch target {
	case models.SessionPaused:
		return "Session paused"
	case models.SessionRunning:
		return "Session resumed"
	case models.SessionCompleted:
		return "Session completed"
	default:
		return "Session updated"
	}
}

func isActionable(status models.SessionStatus) bool {
	for _, s := range actionableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (s *Service) appendActivity(sessionID, message string, status models.ActivityStatus) {
	log := models.ActivityLogModel{
		SessionID: sessionID,
		Message:   message,
		Status:    status,
		Timestamp: time.Now(),
	}
	if err := s.db.Create(&log).Error; err != nil {
		s.logger.Warn("activity log write failed", zap.String("session", sessionID), zap.Error(err))
	}
}

func (s *Service) get(userID, sessionID string) (*models.SessionModel, error) {
	var sess models.SessionModel
	err := s.db.First(&sess, "id = ? AND user_id = ?", sessionID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

func (s *Service) List(userID string, q pagination.Query) ([]models.SessionModel, response.Pagination, error) {
	tx := s.db.Model(&models.SessionModel{}).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	var items []models.SessionModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

func (s *Service) Activities(userID, sessionID string, q pagination.Query) ([]models.ActivityLogModel, response.Pagination, error) {
	if _, err := s.get(userID, sessionID); err != nil {
		return nil, response.Pagination{}, err
	}
	tx := s.db.Model(&models.ActivityLogModel{}).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC")
	var items []models.ActivityLogModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// ExpireStale downgrades sessions stuck in pending or running for more
// than the cutoff. Used by the scheduled janitor.
func (s *Service) ExpireStale(cutoff time.Time) (int64, error) {
	var stale []models.SessionModel
	err := s.db.
		Where("status IN ?", []models.SessionStatus{models.SessionPending, models.SessionRunning}).
		Where("created_at < ?", cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}
	for i := range stale {
		s.markFailed(&stale[i], "Session expired")
	}
	return int64(len(stale)), nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/sessions", authMW)

	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.PATCH("/:id/status", h.updateStatus)
	g.GET("/:id/activities", h.activities)
}

// POST /sessions
func (h *Handler) create(c *gin.Context) {
	var dto CreateSessionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "taskDescription is required")
		return
	}

	sess, err := h.svc.Create(c.Request.Context(), middleware.CurrentUserID(c), &dto)
	if err != nil {
		switch {
		case errors.Is(err, trial.ErrDailyLimitReached):
			response.TooManyRequests(c, "daily trial limit reached")
		case errors.Is(err, trial.ErrTrialDaysExhausted):
			response.TooManyRequests(c, "trial days exhausted")
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, sess)
}

// GET /sessions
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.List(middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}

// GET /sessions/:id
func (h *Handler) detail(c *gin.Context) {
	sess, err := h.svc.get(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, sess)
}

// PATCH /sessions/:id/status
func (h *Handler) updateStatus(c *gin.Context) {
	var dto UpdateStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "status is required")
		return
	}

	sess, err := h.svc.UpdateStatus(c.Request.Context(), middleware.CurrentUserID(c), c.Param("id"), dto.Status)
	if err != nil {
		switch {
		case errors.Is(err, errSessionNotFound):
			response.NotFound(c)
		case errors.Is(err, errUnknownStatus), errors.Is(err, errBadTransition), errors.Is(err, errNotActionable):
			response.BadRequest(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, sess)
}

// GET /sessions/:id/activities
func (h *Handler) activities(c *gin.Context) {
	items, pag, err := h.svc.Activities(middleware.CurrentUserID(c), c.Param("id"), pagination.FromContext(c))
	if err != nil {
		if errors.Is(err, errSessionNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}
