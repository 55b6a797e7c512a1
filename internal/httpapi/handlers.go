package httpapi

import (
	"errors"
	"net/http"
	"time"

	"call-platform/internal/audit"
	"call-platform/internal/auth"
	"call-platform/internal/calls"
	"call-platform/internal/huddles"
	"call-platform/internal/livecache"
	"call-platform/internal/reporting"
	"call-platform/internal/session"
	"call-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call coordinators, map errors to
// status codes. No session semantics live here.
type Handlers struct {
	Auth    *auth.Manager
	Calls   *calls.Coordinator
	Huddles *huddles.Coordinator
	Cache   livecache.Cache
	Audit   *audit.Service
	Reports *reporting.Service

	// MailboxTTL bounds buffered signaling payloads; zero means the
	// livecache default.
	MailboxTTL time.Duration
}

func (h Handlers) mailboxTTL() time.Duration {
	if h.MailboxTTL > 0 {
		return h.MailboxTTL
	}
	return livecache.MailboxTTL
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	Role        string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation belongs to the external auth service; this
// endpoint only exists for local/dev wiring.
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

// --- Calls ---

type createCallRequest struct {
	Kind      calls.Kind `json:"kind"`
	ChannelID string     `json:"channel_id"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	userID, workspaceID, ok := identity(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cs, err := h.Calls.CreateCall(c.Request.Context(), calls.CreateRequest{
		Kind:        req.Kind,
		ChannelID:   req.ChannelID,
		WorkspaceID: workspaceID,
		InitiatorID: userID,
	})
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cs)
}

type joinCallRequest struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

func (h Handlers) JoinCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var req joinCallRequest
	// An empty body means join with media off.
	_ = c.ShouldBindJSON(&req)

	cs, err := h.Calls.JoinCall(c.Request.Context(), c.Param("call_id"), userID, calls.JoinOptions{
		AudioEnabled: req.AudioEnabled,
		VideoEnabled: req.VideoEnabled,
	})
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

func (h Handlers) LeaveCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Calls.LeaveCall(c.Request.Context(), c.Param("call_id"), userID); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) EndCall(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Calls.EndCall(c.Request.Context(), c.Param("call_id"), userID); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) UpdateCallParticipantState(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var upd session.StateUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Calls.UpdateParticipantState(c.Request.Context(), c.Param("call_id"), userID, upd); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) GetCall(c *gin.Context) {
	cs, err := h.Calls.GetCall(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, cs)
}

// --- Huddles ---

func (h Handlers) StartChannelHuddle(c *gin.Context) {
	userID, workspaceID, ok := identity(c)
	if !ok {
		return
	}
	hs, err := h.Huddles.StartOrGetChannelHuddle(c.Request.Context(), c.Param("channel_id"), workspaceID, userID)
	if err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, hs)
}

func (h Handlers) JoinHuddle(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var opts session.StateUpdate
	_ = c.ShouldBindJSON(&opts)

	hs, err := h.Huddles.JoinHuddle(c.Request.Context(), c.Param("huddle_id"), userID, opts)
	if err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, hs)
}

func (h Handlers) LeaveHuddle(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Huddles.LeaveHuddle(c.Request.Context(), c.Param("huddle_id"), userID); err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) EndHuddle(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Huddles.EndHuddle(c.Request.Context(), c.Param("huddle_id"), userID); err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) UpdateHuddleParticipantState(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	var upd session.StateUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if err := h.Huddles.UpdateParticipantState(c.Request.Context(), c.Param("huddle_id"), userID, upd); err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) GetChannelHuddle(c *gin.Context) {
	hs, err := h.Huddles.GetChannelHuddle(c.Request.Context(), c.Param("channel_id"))
	if err != nil {
		h.huddleError(c, err)
		return
	}
	c.JSON(http.StatusOK, hs)
}

// --- Signaling mailbox ---

// PushSignal buffers an opaque negotiation payload for a momentarily
// disconnected participant. The body is relayed as-is; this service never
// interprets SDP/ICE content.
func (h Handlers) PushSignal(c *gin.Context) {
	if _, _, ok := identity(c); !ok {
		return
	}
	sessionID := c.Param("session_id")
	targetUserID := c.Param("user_id")
	if sessionID == "" || targetUserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id and user_id required"})
		return
	}
	payload, err := c.GetRawData()
	if err != nil || len(payload) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "payload required"})
		return
	}

	key := livecache.MailboxKey(sessionID, targetUserID)
	if err := h.Cache.PushMailbox(c.Request.Context(), key, payload, h.mailboxTTL()); err != nil {
		logger.FromGin(c).Error("mailbox push failed", "session_id", sessionID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "mailbox push failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "buffered"})
}

// DrainSignals returns and clears the caller's buffered payloads for a
// session, oldest first.
func (h Handlers) DrainSignals(c *gin.Context) {
	userID, _, ok := identity(c)
	if !ok {
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}

	payloads, err := h.Cache.DrainMailbox(c.Request.Context(), livecache.MailboxKey(sessionID, userID))
	if err != nil {
		logger.FromGin(c).Error("mailbox drain failed", "session_id", sessionID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "mailbox drain failed"})
		return
	}
	out := make([]string, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, string(p))
	}
	c.JSON(http.StatusOK, gin.H{"payloads": out})
}

// --- Admin ---

type forceLeaveRequest struct {
	UserID string `json:"user_id"`
}

// ForceLeaveAllSessions is the unconditional escape hatch for clients stuck
// believing they hold an active session after a crash or reconnect.
func (h Handlers) ForceLeaveAllSessions(c *gin.Context) {
	actorID, workspaceID, ok := identity(c)
	if !ok {
		return
	}
	var req forceLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}

	ctx := c.Request.Context()
	if err := h.Calls.ForceLeaveAll(ctx, req.UserID); err != nil {
		logger.FromGin(c).Error("force-leave calls failed", "user_id", req.UserID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "force-leave failed"})
		return
	}
	if err := h.Huddles.ForceLeaveAll(ctx, req.UserID); err != nil {
		logger.FromGin(c).Error("force-leave huddles failed", "user_id", req.UserID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "force-leave failed"})
		return
	}

	if h.Audit != nil {
		role, _ := auth.Role(ctx)
		// Best-effort; the recovery itself already succeeded.
		if err := h.Audit.LogForceLeave(ctx, workspaceID, actorID, role, req.UserID); err != nil {
			logger.FromGin(c).Warn("audit append failed", "err", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UsageReport aggregates ended sessions for the caller's workspace over a
// from/to query range (RFC 3339).
func (h Handlers) UsageReport(c *gin.Context) {
	_, workspaceID, ok := identity(c)
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from must be RFC 3339"})
		return
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "to must be RFC 3339"})
		return
	}

	out, err := h.Reports.UsageSummary(c.Request.Context(), reporting.UsageSummaryRequest{
		WorkspaceID: workspaceID,
		Range:       reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid range"})
			return
		}
		logger.FromGin(c).Error("usage report failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, out)
}

// --- helpers ---

func identity(c *gin.Context) (userID, workspaceID string, ok bool) {
	ctx := c.Request.Context()
	userID, err := auth.UserID(ctx)
	if err != nil || userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", "", false
	}
	workspaceID, err = auth.WorkspaceID(ctx)
	if err != nil || workspaceID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "workspace_id required"})
		return "", "", false
	}
	return userID, workspaceID, true
}

func (h Handlers) callError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, calls.ErrPermissionDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the initiator can end this call"})
	case errors.Is(err, calls.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		logger.FromGin(c).Error("call operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h Handlers) huddleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, huddles.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "huddle not found"})
	case errors.Is(err, huddles.ErrPermissionDenied):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "only the initiator can end this huddle"})
	case errors.Is(err, huddles.ErrCapacityExceeded):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "huddle is full"})
	case errors.Is(err, huddles.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid argument"})
	default:
		logger.FromGin(c).Error("huddle operation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
