package rtctoken

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-live/backend/pkg/response"
)

// Handler serves media tokens.
type Handler struct {
	provider Provider
	ttl      int64
	appID    uint32
	logger   *zap.Logger
}

// NewHandler creates a token handler. appID is echoed to clients that need it (ZEGO SDK); pass 0 otherwise.
func NewHandler(provider Provider, ttlSeconds int64, appID uint32, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttlSeconds <= 0 {
		ttlSeconds = 3600
	}
	return &Handler{provider: provider, ttl: ttlSeconds, appID: appID, logger: logger}
}

// GetToken handles GET /rtc-token?channel=&uid=&role=publisher|subscriber.
func (h *Handler) GetToken(c *gin.Context) {
	channel := c.Query("channel")
	if channel == "" {
		response.BadRequest(c, "channel required")
		return
	}
	uid := c.DefaultQuery("uid", "0")
	role, err := ParseRole(c.Query("role"))
	if err != nil {
		response.BadRequest(c, "role must be publisher or subscriber")
		return
	}
	token, err := h.provider.Issue(channel, uid, role, h.ttl)
	if err != nil {
		if errors.Is(err, ErrConfig) {
			response.ServiceUnavailable(c, "media token provider not configured")
			return
		}
		h.logger.Error("rtc token generation failed", zap.Error(err), zap.String("channel", channel))
		response.Internal(c, "failed to generate token")
		return
	}
	data := gin.H{"token": token, "expires_in": h.ttl}
	if h.appID != 0 {
		data["app_id"] = h.appID
	}
	response.OK(c, data)
}
