package main

import (
	"database/sql"
	"net/http"
	"time"

	"call-platform/internal/httpapi"
	"call-platform/internal/rbac"
	"call-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB, rdb *redis.Client) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})

	// AUTH routes (token issuance).
	// NOTE: Real credential validation is delegated to the workspace auth
	// service; this route exists for local development.
	r.POST("/v1/auth/login", h.Login)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	v1.Use(rbac.RequireWorkspace())
	{
		// CALL routes
		callGroup := v1.Group("/calls")
		{
			callGroup.POST("", h.CreateCall)
			callGroup.GET("/:call_id", h.GetCall)
			callGroup.POST("/:call_id/join", h.JoinCall)
			callGroup.POST("/:call_id/leave", h.LeaveCall)
			callGroup.POST("/:call_id/end", h.EndCall)
			callGroup.PATCH("/:call_id/state", h.UpdateCallParticipantState)
		}

		// HUDDLE routes
		huddleGroup := v1.Group("/huddles")
		{
			huddleGroup.POST("/channels/:channel_id", h.StartChannelHuddle)
			huddleGroup.GET("/channels/:channel_id", h.GetChannelHuddle)
			huddleGroup.POST("/:huddle_id/join", h.JoinHuddle)
			huddleGroup.POST("/:huddle_id/leave", h.LeaveHuddle)
			huddleGroup.POST("/:huddle_id/end", h.EndHuddle)
			huddleGroup.PATCH("/:huddle_id/state", h.UpdateHuddleParticipantState)
		}

		// SIGNALING mailbox routes
		signaling := v1.Group("/signaling")
		{
			signaling.POST("/:session_id/mailbox/:user_id", h.PushSignal)
			signaling.GET("/:session_id/mailbox", h.DrainSignals)
		}

		// ADMIN routes
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.POST("/sessions/force-leave", h.ForceLeaveAllSessions)
			admin.GET("/reports/usage", h.UsageReport)
		}
	}
}
