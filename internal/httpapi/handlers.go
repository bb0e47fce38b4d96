package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/pkondra/ring-receptionist/internal/audit"
	"github.com/pkondra/ring-receptionist/internal/auth"
	"github.com/pkondra/ring-receptionist/internal/phonepool"
	"github.com/pkondra/ring-receptionist/internal/reporting"
	"github.com/pkondra/ring-receptionist/internal/session"
	"github.com/pkondra/ring-receptionist/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Sessions session.Repository
	Reports  *reporting.Service
	Pool     *phonepool.Allocator
	Audit    *audit.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.WorkspaceID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, workspace_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.WorkspaceID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Sessions ---

func (h Handlers) ListSessions(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	rows, err := h.Sessions.ListByWorkspace(c.Request.Context(), workspaceID, limit)
	if err != nil {
		logger.FromGin(c).Error("session list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": rows})
}

func (h Handlers) GetSession(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	sess, found, err := h.Sessions.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		logger.FromGin(c).Error("session lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "session lookup failed"})
		return
	}
	// Cross-workspace ids 404 rather than 403 to avoid existence leaks.
	if !found || sess.WorkspaceID != workspaceID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// --- Appointments ---

func (h Handlers) ListAppointments(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	limit := intQuery(c, "limit", 50)
	rows, err := h.Sessions.ListAppointmentsByWorkspace(c.Request.Context(), workspaceID, limit)
	if err != nil {
		logger.FromGin(c).Error("appointment list failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "appointment list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"appointments": rows})
}

func (h Handlers) GetAppointment(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	appt, found, err := h.Sessions.GetAppointmentBySession(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		logger.FromGin(c).Error("appointment lookup failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "appointment lookup failed"})
		return
	}
	if !found || appt.WorkspaceID != workspaceID {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
		return
	}
	c.JSON(http.StatusOK, appt)
}

// --- Reports ---

// CallsReport aggregates call metrics over an optional from/to range
// (RFC 3339); the default window is the trailing 30 days.
func (h Handlers) CallsReport(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reporting not configured"})
		return
	}

	now := time.Now().UTC()
	rng := reporting.TimeRange{From: now.Add(-30 * 24 * time.Hour), To: now}
	var parseErr error
	if v := c.Query("from"); v != "" {
		rng.From, parseErr = time.Parse(time.RFC3339, v)
	}
	if v := c.Query("to"); v != "" && parseErr == nil {
		rng.To, parseErr = time.Parse(time.RFC3339, v)
	}
	if parseErr != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from/to must be RFC 3339 timestamps"})
		return
	}

	out, err := h.Reports.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{WorkspaceID: workspaceID, Range: rng})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid report range"})
			return
		}
		logger.FromGin(c).Error("calls report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "report failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- Phone pool (admin) ---

type assignNumberRequest struct {
	AgentConfigID string `json:"agent_config_id"`
}

// AssignPhoneNumber binds a free pool number to one of the workspace's agents.
// RBAC: operator or super_admin.
func (h Handlers) AssignPhoneNumber(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	if h.Pool == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "phone pool not configured"})
		return
	}
	var req assignNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AgentConfigID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent_config_id required"})
		return
	}

	res, err := h.Pool.Assign(c.Request.Context(), workspaceID, req.AgentConfigID)
	switch {
	case errors.Is(err, phonepool.ErrPoolExhausted):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no unassigned phone numbers available"})
		return
	case errors.Is(err, phonepool.ErrBusy):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "assignment already in progress"})
		return
	case errors.Is(err, phonepool.ErrAgentNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "agent not found"})
		return
	case errors.Is(err, phonepool.ErrNoExternalAgent):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "agent has no external agent id"})
		return
	case err != nil:
		logger.FromGin(c).Error("phone number assign failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "assign failed"})
		return
	}

	h.logAdmin(c, workspaceID, "phone number assigned to agent "+req.AgentConfigID)
	c.JSON(http.StatusOK, gin.H{
		"phone_number":    res.Number.Number,
		"phone_number_id": res.Number.ID,
		"reused":          res.Reused,
	})
}

// ReleasePhoneNumbers returns every number held by the workspace to the pool.
// RBAC: operator or super_admin.
func (h Handlers) ReleasePhoneNumbers(c *gin.Context) {
	workspaceID, ok := requireWorkspace(c)
	if !ok {
		return
	}
	if h.Pool == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "phone pool not configured"})
		return
	}
	if err := h.Pool.Release(c.Request.Context(), workspaceID); err != nil {
		logger.FromGin(c).Error("phone number release failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	h.logAdmin(c, workspaceID, "workspace phone numbers released")
	c.JSON(http.StatusOK, gin.H{"released": true})
}

// --- helpers ---

func requireWorkspace(c *gin.Context) (string, bool) {
	workspaceID, err := auth.WorkspaceID(c.Request.Context())
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return "", false
	}
	return workspaceID, true
}

func intQuery(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return fallback
	}
	if n > 1000 {
		return 1000
	}
	return n
}

func (h Handlers) logAdmin(c *gin.Context, workspaceID, message string) {
	if h.Audit == nil {
		return
	}
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	if err := h.Audit.LogAdminAction(c.Request.Context(), workspaceID, userID, role, c.ClientIP(), message, ""); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}
