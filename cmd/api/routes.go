package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/pkondra/ring-receptionist/internal/auth"
	"github.com/pkondra/ring-receptionist/internal/billing"
	"github.com/pkondra/ring-receptionist/internal/httpapi"
	"github.com/pkondra/ring-receptionist/internal/rbac"
	"github.com/pkondra/ring-receptionist/internal/webhook"
	"github.com/pkondra/ring-receptionist/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, authManager *auth.Manager, api httpapi.Handlers, postCall webhook.Handler, stripeHook billing.Handler, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks (public). Each handler verifies its own signature
	// against the raw body before anything else happens.
	r.POST("/webhooks/elevenlabs/post-call", postCall.HandlePostCall)
	r.POST("/webhooks/stripe", stripeHook.HandleWebhook)

	// Token issuance is public; everything else under /v1 is not.
	r.POST("/v1/auth/login", api.Login)

	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(authManager))
	v1.Use(rbac.RequireWorkspace())
	{
		// Identity echo; the dashboard uses it to bootstrap after login.
		v1.GET("/me", func(c *gin.Context) {
			uid, _ := auth.UserID(c.Request.Context())
			wid, _ := auth.WorkspaceID(c.Request.Context())
			role, _ := auth.Role(c.Request.Context())
			c.JSON(http.StatusOK, gin.H{"user_id": uid, "workspace_id": wid, "role": role})
		})

		// Dashboard reads.
		dash := v1.Group("")
		dash.Use(rbac.RequireAnyRole(rbac.RoleOwner, rbac.RoleSuperAdmin))
		{
			dash.GET("/sessions", api.ListSessions)
			dash.GET("/sessions/:id", api.GetSession)
			dash.GET("/appointments", api.ListAppointments)
			dash.GET("/appointments/:session_id", api.GetAppointment)
			dash.GET("/reports/calls", api.CallsReport)
		}

		// Pool administration. Hidden operator role is allowed explicitly here
		// and nowhere else.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSuperAdmin))
		{
			admin.POST("/phone-numbers/assign", api.AssignPhoneNumber)
			admin.POST("/phone-numbers/release", api.ReleasePhoneNumbers)
		}
	}
}
