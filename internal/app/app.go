package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/agentbrowse/core/internal/config"
	"github.com/agentbrowse/core/internal/database"
	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/modules/engine"
	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/modules/payment"
	"github.com/agentbrowse/core/internal/modules/session"
	"github.com/agentbrowse/core/internal/modules/trial"
	pkgcron "github.com/agentbrowse/core/internal/pkg/cron"
	jwtpkg "github.com/agentbrowse/core/internal/pkg/jwt"
	"github.com/agentbrowse/core/internal/pkg/mail"
	pkgredis "github.com/agentbrowse/core/internal/pkg/redis"
)

// App holds all application dependencies.
type App struct {
	cfg    *config.AppConfig
	router *gin.Engine
	db     *gorm.DB
	hub    *gateway.Hub
	ledger *trial.Ledger
	engine *engine.Client
	mailer *mail.Sender
	logger *zap.Logger
	cancel context.CancelFunc
	sched  *pkgcron.Scheduler

	sessionSvc *session.Service
	paymentSvc *payment.Service
}

// New initializes the application: config → DB → Redis → hub → routes.
func New(logger *zap.Logger, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}

	db, err := database.Connect(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	rc, err := pkgredis.Connect(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	allowOrigin := originChecker(cfg.AllowedOrigins, cfg.IsDev())
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "x-idempotence"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowOriginFunc:  allowOrigin,
	}))

	hub := gateway.NewHub(rc, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	ledger := trial.NewLedger(trial.Options{
		Location:     cfg.Location(),
		DailyMinutes: cfg.Trial.DailyMinutes,
		MaxDays:      cfg.Trial.MaxDays,
		WindowDays:   cfg.Trial.WindowDays,
	})

	app := &App{
		cfg:    cfg,
		router: router,
		db:     db,
		hub:    hub,
		ledger: ledger,
		engine: engine.NewClient(cfg.Engine.URL, cfg.EngineTimeout(), logger),
		mailer: mail.New(cfg.Mail),
		logger: logger,
		cancel: cancel,
		sched:  pkgcron.New(),
	}

	app.registerRoutes(rc, allowOrigin)
	app.registerCronJobs()
	go app.sched.Start(ctx)

	return app, nil
}

// Addr returns the listen address.
func (a *App) Addr() string { return fmt.Sprintf(":%d", a.cfg.Port) }

// Router returns the HTTP handler.
func (a *App) Router() http.Handler { return a.router }

// Shutdown cleans up background goroutines.
func (a *App) Shutdown() { a.cancel() }
