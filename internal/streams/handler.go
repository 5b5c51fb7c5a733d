package streams

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-live/backend/internal/live"
	"github.com/aura-live/backend/internal/models"
	"github.com/aura-live/backend/pkg/response"
)

const (
	defaultCommentLimit = 100
	maxCommentLimit     = 500
)

// StartRequest is the body for POST /live/start.
type StartRequest struct {
	HostUsername string   `json:"host_username" binding:"required"`
	NotifyTokens []string `json:"notify_tokens"` // device tokens of followers to tell the host went live
}

// EndRequest is the body for POST /live/end.
type EndRequest struct {
	StreamID string `json:"stream_id" binding:"required"`
}

// Notifier tells followers a stream started. Failures are the notifier's own concern.
type Notifier interface {
	Notify(ctx context.Context, tokens []string, title, body string, data map[string]string)
}

// Handler handles live stream HTTP endpoints.
type Handler struct {
	reg      *live.Registry
	store    live.Store
	notifier Notifier
	logger   *zap.Logger
}

// NewHandler creates a live stream handler. notifier may be nil.
func NewHandler(reg *live.Registry, store live.Store, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{reg: reg, store: store, notifier: notifier, logger: logger}
}

// Start handles POST /live/start.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	s, err := h.reg.Open(c.Request.Context(), req.HostUsername)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if h.notifier != nil && len(req.NotifyTokens) > 0 {
		h.notifier.Notify(c.Request.Context(), req.NotifyTokens,
			req.HostUsername+" is live",
			"Tap to join the stream",
			map[string]string{"type": "live_started", "stream_id": s.ID},
		)
	}
	response.Created(c, s)
}

// End handles POST /live/end. Ending a stream twice succeeds.
func (h *Handler) End(c *gin.Context) {
	var req EndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.reg.Close(c.Request.Context(), req.StreamID); err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, gin.H{"stream_id": req.StreamID, "ended": true})
}

// List handles GET /live/list.
func (h *Handler) List(c *gin.Context) {
	list := h.reg.ListLive()
	if list == nil {
		list = []models.LiveStream{}
	}
	response.OK(c, list)
}

// Get handles GET /live/:id. Streams that ended before the last restart are read from the store.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	s, err := h.reg.Get(id)
	if err == nil {
		response.OK(c, s)
		return
	}
	if !errors.Is(err, live.ErrNotFound) {
		h.writeError(c, err)
		return
	}
	stored, err := h.store.GetSession(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get stream failed", zap.String("stream_id", id), zap.Error(err))
		response.ServiceUnavailable(c, "failed to load stream")
		return
	}
	if stored == nil {
		response.NotFound(c, "stream not found")
		return
	}
	response.OK(c, stored)
}

// Comments handles GET /live/:id/comments?limit=N.
func (h *Handler) Comments(c *gin.Context) {
	limit := defaultCommentLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxCommentLimit)
	}
	id := c.Param("id")
	list, err := h.store.ListComments(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Error("list comments failed", zap.String("stream_id", id), zap.Error(err))
		response.ServiceUnavailable(c, "failed to list comments")
		return
	}
	if list == nil {
		list = []models.Comment{}
	}
	response.OK(c, gin.H{"comments": list})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, live.ErrNotFound):
		response.NotFound(c, "stream not found")
	case errors.Is(err, live.ErrSessionClosed):
		response.Conflict(c, "stream has ended")
	case errors.Is(err, live.ErrStartFailed), errors.Is(err, live.ErrPersistence):
		h.logger.Error("live store unavailable", zap.Error(err))
		response.ServiceUnavailable(c, "storage unavailable, try again")
	default:
		h.logger.Error("live request failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}
