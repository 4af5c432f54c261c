package app

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agentbrowse/core/internal/middleware"
	"github.com/agentbrowse/core/internal/modules/auth"
	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/modules/gateway/webhook"
	"github.com/agentbrowse/core/internal/modules/payment"
	"github.com/agentbrowse/core/internal/modules/processing/refine"
	"github.com/agentbrowse/core/internal/modules/session"
	"github.com/agentbrowse/core/internal/modules/stats"
	"github.com/agentbrowse/core/internal/modules/storage/file"
	"github.com/agentbrowse/core/internal/modules/system/health"
	"github.com/agentbrowse/core/internal/modules/trial"
	pkgredis "github.com/agentbrowse/core/internal/pkg/redis"
	"github.com/agentbrowse/core/internal/pkg/response"
)

const apiPrefix = "/api/v2"

func (a *App) registerRoutes(rc *pkgredis.Client, allowOrigin func(string) bool) {
	r := a.router
	db := a.db
	authMW := middleware.Auth(db)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c)
	})
	r.NoMethod(func(c *gin.Context) {
		response.MethodNotAllowed(c)
	})

	appInfo := gin.H{
		"name":    "agentbrowse-core",
		"version": "1.0.0",
	}

	// Rate limiting and idempotence run on every route (requires Redis).
	r.Use(middleware.RateLimit(rc.Raw()))
	r.Use(middleware.Idempotence(rc.Raw()))

	// WebSocket endpoints live at the root so the engine and browser
	// clients can dial without the API prefix.
	gateway.NewHandler(a.hub, a.logger, allowOrigin).RegisterRoutes(r.Group(""))

	// Versioned API
	api := r.Group(apiPrefix)
	api.Use(middleware.OptionalAuth(db))

	api.GET("", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/info", func(c *gin.Context) { c.PureJSON(http.StatusOK, appInfo) })
	api.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "pong"}) })

	health.RegisterRoutes(api, db, rc, a.hub, a.sched, authMW)
	gateway.RegisterStatsRoute(api, a.hub)

	// Auth
	auth.NewHandler(auth.NewService(db, a.logger)).RegisterRoutes(api, authMW)

	// Sessions
	sessionSvc := session.NewService(db, a.engine, a.hub, a.ledger, a.logger)
	a.sessionSvc = sessionSvc
	session.NewHandler(sessionSvc).RegisterRoutes(api, authMW)

	// Trial quota
	trial.NewHandler(a.ledger).RegisterRoutes(api, authMW)

	// Engine callbacks; the engine sits inside the trust boundary and
	// does not carry user tokens.
	webhook.NewHandler(webhook.NewService(db, a.hub, a.logger)).RegisterRoutes(api)

	// Payments
	paymentSvc := payment.NewService(db, a.cfg.Payment, a.mailer, a.logger)
	a.paymentSvc = paymentSvc
	payment.NewHandler(paymentSvc).RegisterRoutes(api, authMW)

	// Files
	file.NewHandler(file.NewService(db, a.cfg, a.logger)).RegisterRoutes(api, authMW)

	// Task refinement
	refine.NewHandler(refine.NewService(a.cfg.AI, a.logger)).RegisterRoutes(api, authMW)

	// Admin overview
	stats.NewHandler(stats.NewService(db, a.hub, a.cfg.Location())).RegisterRoutes(api, authMW)
}
