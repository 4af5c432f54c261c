// Package stats exposes platform-wide aggregates for the admin overview.
package stats

import (
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/pkg/response"
)

type Overview struct {
	Users          int64            `json:"users"`
	ProUsers       int64            `json:"proUsers"`
	Sessions       int64            `json:"sessions"`
	SessionsByStat map[string]int64 `json:"sessionsByStatus"`
	SessionsToday  int64            `json:"sessionsToday"`
	Payments       int64            `json:"payments"`
	RevenueMinor   int64            `json:"revenueMinor"`
	LiveSessions   int              `json:"liveSessions"`
	Subscribers    int              `json:"subscribers"`
}

type Service struct {
	db  *gorm.DB
	hub *gateway.Hub
	loc *time.Location
}

func NewService(db *gorm.DB, hub *gateway.Hub, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, hub: hub, loc: loc}
}

// Overview collects the all-time and today counters in one pass.
func (s *Service) Overview(now time.Time) (*Overview, error) {
	out := &Overview{SessionsByStat: map[string]int64{}}

	if err := s.db.Model(&models.UserModel{}).Count(&out.Users).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.UserModel{}).Where("plan = ?", "pro").Count(&out.ProUsers).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.SessionModel{}).Count(&out.Sessions).Error; err != nil {
		return nil, err
	}

	type statusCount struct {
		Status string
		Total  int64
	}
	var rows []statusCount
	if err := s.db.Model(&models.SessionModel{}).
		Select("status, count(*) as total").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out.SessionsByStat[row.Status] = row.Total
	}

	dayStart := time.Date(now.In(s.loc).Year(), now.In(s.loc).Month(), now.In(s.loc).Day(), 0, 0, 0, 0, s.loc)
	if err := s.db.Model(&models.SessionModel{}).
		Where("created_at >= ?", dayStart).
		Count(&out.SessionsToday).Error; err != nil {
		return nil, err
	}

	if err := s.db.Model(&models.PaymentModel{}).
		Where("status = ?", models.PaymentSuccess).
		Count(&out.Payments).Error; err != nil {
		return nil, err
	}

	type revenueRow struct{ Total int64 }
	var revenue revenueRow
	if err := s.db.Model(&models.PaymentModel{}).
		Select("coalesce(sum(amount), 0) as total").
		Where("status = ?", models.PaymentSuccess).
		Scan(&revenue).Error; err != nil {
		return nil, err
	}
	out.RevenueMinor = revenue.Total

	if s.hub != nil {
		out.LiveSessions = s.hub.SessionCount()
		out.Subscribers = s.hub.SubscriberCount("")
	}

	return out, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/stats", authMW)

	g.GET("/overview", h.overview)
}

// GET /stats/overview
func (h *Handler) overview(c *gin.Context) {
	overview, err := h.svc.Overview(time.Now())
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, overview)
}
