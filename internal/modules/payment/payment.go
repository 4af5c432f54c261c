package payment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agentbrowse/core/internal/config"
	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/pkg/mail"
	"github.com/agentbrowse/core/internal/pkg/pagination"
	"github.com/agentbrowse/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultGatewayURL = "https://api.razorpay.com/v1"

type CreateOrderDTO struct {
	Plan string `json:"plan" binding:"required"`
}

type VerifyDTO struct {
	OrderID   string `json:"orderId"   binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// OrderResponse is what the checkout frontend needs to open the widget.
type OrderResponse struct {
	OrderID  string `json:"orderId"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
	Plan     string `json:"plan"`
}

var (
	errUnknownPlan     = errors.New("unknown plan")
	errBadSignature    = errors.New("signature verification failed")
	errOrderNotFound   = errors.New("order not found")
	errGatewayRejected = errors.New("payment gateway rejected the order")
)

type Service struct {
	db         *gorm.DB
	cfg        config.PaymentConfig
	mailer     *mail.Sender
	http       *http.Client
	gatewayURL string
	logger     *zap.Logger
}

func NewService(db *gorm.DB, cfg config.PaymentConfig, mailer *mail.Sender, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:         db,
		cfg:        cfg,
		mailer:     mailer,
		http:       &http.Client{Timeout: 15 * time.Second},
		gatewayURL: defaultGatewayURL,
		logger:     logger,
	}
}

// SetGatewayURL overrides the gateway endpoint. Used by tests.
func (s *Service) SetGatewayURL(url string) {
	s.gatewayURL = strings.TrimRight(url, "/")
}

type gatewayOrder struct {
	ID string `json:"id"`
}

// createGatewayOrder registers the order with the payment gateway using
// basic auth and returns the gateway order id.
func (s *Service) createGatewayOrder(amount int64, currency, receipt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, s.gatewayURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(s.cfg.KeyID, s.cfg.KeySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway order request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		s.logger.Warn("gateway order rejected",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet),
		)
		return "", errGatewayRejected
	}

	var order gatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return "", fmt.Errorf("decode gateway order: %w", err)
	}
	if order.ID == "" {
		return "", errGatewayRejected
	}
	return order.ID, nil
}

// CreateOrder prices the plan, registers it with the gateway, and
// records a pending payment row.
func (s *Service) CreateOrder(userID string, dto *CreateOrderDTO) (*OrderResponse, error) {
	amount, ok := s.cfg.Plans[dto.Plan]
	if !ok {
		return nil, errUnknownPlan
	}

	orderID, err := s.createGatewayOrder(amount, s.cfg.Currency, "ab-"+userID)
	if err != nil {
		return nil, err
	}

	record := models.PaymentModel{
		UserID:         userID,
		GatewayOrderID: orderID,
		Amount:         amount,
		Currency:       s.cfg.Currency,
		Status:         models.PaymentPending,
		Plan:           dto.Plan,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return nil, err
	}

	return &OrderResponse{
		OrderID:  orderID,
		Amount:   amount,
		Currency: s.cfg.Currency,
		KeyID:    s.cfg.KeyID,
		Plan:     dto.Plan,
	}, nil
}

// subscriptionEnd extends from the later of now and the current end, so
// renewing early never loses paid time.
func subscriptionEnd(current *time.Time, plan string, now time.Time) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	if plan == "pro-yearly" {
		return base.AddDate(1, 0, 0)
	}
	return base.AddDate(0, 1, 0)
}

// Verify checks the checkout signature and, on first success, marks the
// payment paid, upgrades the user's subscription, and emails a receipt.
// A bad signature is a hard reject and is never retried server-side.
func (s *Service) Verify(userID string, dto *VerifyDTO) (*models.PaymentModel, error) {
	if !VerifySignature(dto.OrderID, dto.PaymentID, s.cfg.KeySecret, dto.Signature) {
		return nil, errBadSignature
	}

	var record models.PaymentModel
	err := s.db.First(&record, "gateway_order_id = ? AND user_id = ?", dto.OrderID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errOrderNotFound
		}
		return nil, err
	}

	// The verification step updates the record exactly once.
	if record.Status == models.PaymentSuccess {
		return &record, nil
	}

	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	newEnd := subscriptionEnd(user.SubscriptionEnd, record.Plan, now)

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&record).Updates(map[string]interface{}{
			"status":             models.PaymentSuccess,
			"gateway_payment_id": dto.PaymentID,
			"subscription_end":   newEnd,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&user).Updates(map[string]interface{}{
			"plan":             "pro",
			"subscription_end": newEnd,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	record.Status = models.PaymentSuccess
	record.GatewayPaymentID = &dto.PaymentID
	record.SubscriptionEnd = &newEnd

	if s.mailer != nil {
		go s.sendReceipt(user.Email, &record)
	}
	return &record, nil
}

func (s *Service) sendReceipt(email string, record *models.PaymentModel) {
	if strings.TrimSpace(email) == "" {
		return
	}
	html := fmt.Sprintf(
		"<p>Thanks for subscribing to AgentBrowse.</p><p>Plan: %s<br>Amount: %.2f %s<br>Valid until: %s</p>",
		record.Plan,
		float64(record.Amount)/100,
		record.Currency,
		record.SubscriptionEnd.Format("2006-01-02"),
	)
	err := s.mailer.Send(mail.Message{
		To:      []string{email},
		Subject: "Your AgentBrowse receipt",
		HTML:    html,
	})
	if err != nil {
		s.logger.Warn("receipt email failed", zap.String("order", record.GatewayOrderID), zap.Error(err))
	}
}

func (s *Service) List(userID string, q pagination.Query) ([]models.PaymentModel, response.Pagination, error) {
	tx := s.db.Model(&models.PaymentModel{}).
		Where("user_id = ?", userID).
		Order("created_at DESC")
	var items []models.PaymentModel
	pag, err := pagination.Paginate(tx, q, &items)
	return items, pag, err
}

// ExpireSubscriptions downgrades users whose paid period ended. Used by
// the scheduled expirer.
func (s *Service) ExpireSubscriptions(now time.Time) (int64, error) {
	res := s.db.Model(&models.UserModel{}).
		Where("plan <> ? AND subscription_end IS NOT NULL AND subscription_end < ?", "free", now).
		Update("plan", "free")
	return res.RowsAffected, res.Error
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/payments", authMW)

	g.POST("/order", h.createOrder)
	g.POST("/verify", h.verify)
	g.GET("", h.list)
}

// POST /payments/order
func (h *Handler) createOrder(c *gin.Context) {
	var dto CreateOrderDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "plan is required")
		return
	}

	order, err := h.svc.CreateOrder(middleware.CurrentUserID(c), &dto)
	if err != nil {
		switch {
		case errors.Is(err, errUnknownPlan):
			response.BadRequest(c, err.Error())
		case errors.Is(err, errGatewayRejected):
			response.UnprocessableEntity(c, err.Error())
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Created(c, order)
}

// POST /payments/verify
func (h *Handler) verify(c *gin.Context) {
	var dto VerifyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "orderId, paymentId and signature are required")
		return
	}

	record, err := h.svc.Verify(middleware.CurrentUserID(c), &dto)
	if err != nil {
		switch {
		case errors.Is(err, errBadSignature):
			response.BadRequest(c, err.Error())
		case errors.Is(err, errOrderNotFound):
			response.NotFound(c)
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.OK(c, record)
}

// GET /payments
func (h *Handler) list(c *gin.Context) {
	items, pag, err := h.svc.List(middleware.CurrentUserID(c), pagination.FromContext(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, items, pag)
}
