// Package health reports liveness of the service's backing stores and
// exposes the cron job registry to admins.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/agentbrowse/core/internal/modules/gateway/gateway"
	"github.com/agentbrowse/core/internal/pkg/cron"
	pkgredis "github.com/agentbrowse/core/internal/pkg/redis"
	"github.com/agentbrowse/core/internal/pkg/response"
)

var startedAt = time.Now()

func RegisterRoutes(rg *gin.RouterGroup, db *gorm.DB, rc *pkgredis.Client, hub *gateway.Hub, sched *cron.Scheduler, authMW gin.HandlerFunc) {
	rg.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		dbOK := err == nil && sqlDB.Ping() == nil

		redisOK := true
		if rc != nil {
			redisOK = rc.Raw().Ping(c.Request.Context()).Err() == nil
		}

		status := "ok"
		code := http.StatusOK
		if !dbOK || !redisOK {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		body := gin.H{
			"status":        status,
			"database":      dbOK,
			"redis":         redisOK,
			"uptimeSeconds": int64(time.Since(startedAt).Seconds()),
		}
		if hub != nil {
			body["liveSessions"] = hub.SessionCount()
			body["subscribers"] = hub.SubscriberCount("")
		}

		c.JSON(code, body)
	})

	adminHealth := rg.Group("/health", authMW)
	cronGroup := adminHealth.Group("/cron")
	{
		cronGroup.GET("", func(c *gin.Context) {
			items := sched.List()
			byName := make(map[string]cron.ListItem, len(items))
			for _, item := range items {
				byName[item.Name] = item
			}
			response.OK(c, byName)
		})

		cronGroup.POST("/run/:name", func(c *gin.Context) {
			if err := sched.Run(c.Request.Context(), c.Param("name")); err != nil {
				response.NotFoundMsg(c, err.Error())
				return
			}
			response.OK(c, gin.H{"message": "job triggered"})
		})
	}
}
