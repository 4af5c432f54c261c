package auth

import (
	"errors"
	"time"

	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/models"
	"github.com/agentbrowse/core/internal/pkg/response"
	sessionpkg "github.com/agentbrowse/core/internal/pkg/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

type LoginDTO struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string            `json:"token"`
	User  *models.UserModel `json:"user"`
}

var (
	errEmailTaken         = errors.New("email already registered")
	errInvalidCredentials = errors.New("invalid email or password")
)

// failedLoginDelay slows down credential guessing.
const failedLoginDelay = 3 * time.Second

type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: db, logger: logger}
}

func (s *Service) Register(dto *RegisterDTO) (*models.UserModel, error) {
	var count int64
	if err := s.db.Model(&models.UserModel{}).Where("email = ?", dto.Email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := models.UserModel{
		Email:    dto.Email,
		Name:     dto.Name,
		Password: string(hashed),
		Plan:     "free",
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and issues a session-bound JWT. Failures
// pay a fixed delay before answering.
func (s *Service) Login(dto *LoginDTO, ip, ua string) (string, *models.UserModel, error) {
	var user models.UserModel
	err := s.db.First(&user, "email = ?", dto.Email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			time.Sleep(failedLoginDelay)
			return "", nil, errInvalidCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(dto.Password)) != nil {
		time.Sleep(failedLoginDelay)
		return "", nil, errInvalidCredentials
	}

	token, _, err := sessionpkg.Issue(s.db, user.ID, ip, ua, sessionpkg.DefaultTTL)
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	if err := s.db.Model(&user).Updates(map[string]interface{}{
		"last_login_time": now,
		"last_login_ip":   ip,
	}).Error; err != nil {
		s.logger.Warn("login bookkeeping failed", zap.String("user", user.ID), zap.Error(err))
	}
	user.LastLoginTime = &now
	user.LastLoginIP = ip
	return token, &user, nil
}

func (s *Service) Me(userID string) (*models.UserModel, error) {
	var user models.UserModel
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/auth")

	g.POST("/register", h.register)
	g.POST("/login", h.login)

	a := g.Group("", authMW)
	a.POST("/logout", h.logout)
	a.GET("/me", h.me)
	a.GET("/sessions", h.sessions)
	a.DELETE("/sessions/:sid", h.revokeSession)
	a.POST("/sessions/revoke-others", h.revokeOthers)
}

// POST /auth/register
func (h *Handler) register(c *gin.Context) {
	var dto RegisterDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "a valid email and a password of at least 8 characters are required")
		return
	}

	user, err := h.svc.Register(&dto)
	if err != nil {
		if errors.Is(err, errEmailTaken) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, user)
}

// POST /auth/login
func (h *Handler) login(c *gin.Context) {
	var dto LoginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "email and password are required")
		return
	}

	token, user, err := h.svc.Login(&dto, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, errInvalidCredentials) {
			response.Unauthorized(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, loginResponse{Token: token, User: user})
}

// POST /auth/logout
func (h *Handler) logout(c *gin.Context) {
	userID := middleware.CurrentUserID(c)
	sid := middleware.CurrentSessionID(c)
	if sid != "" {
		if err := sessionpkg.Revoke(h.svc.db, userID, sid); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			response.InternalError(c, err)
			return
		}
	}
	response.NoContent(c)
}

// GET /auth/me
func (h *Handler) me(c *gin.Context) {
	user, err := h.svc.Me(middleware.CurrentUserID(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, user)
}

// GET /auth/sessions
func (h *Handler) sessions(c *gin.Context) {
	items, err := sessionpkg.ListActive(h.svc.db, middleware.CurrentUserID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, items)
}

// DELETE /auth/sessions/:sid
func (h *Handler) revokeSession(c *gin.Context) {
	err := sessionpkg.Revoke(h.svc.db, middleware.CurrentUserID(c), c.Param("sid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// POST /auth/sessions/revoke-others
func (h *Handler) revokeOthers(c *gin.Context) {
	err := sessionpkg.RevokeAllExcept(h.svc.db, middleware.CurrentUserID(c), middleware.CurrentSessionID(c))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
