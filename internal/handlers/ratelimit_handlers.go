package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/ratelimit"
)

// RateLimitHandler exposes read-only budget checks and the penalty
// list.
type RateLimitHandler struct {
	guard *ratelimit.Guard
}

// NewRateLimitHandler creates a new RateLimitHandler.
func NewRateLimitHandler(guard *ratelimit.Guard) *RateLimitHandler {
	return &RateLimitHandler{guard: guard}
}

// Status reports the caller's remaining budget for a policy without
// consuming a point.
func (h *RateLimitHandler) Status(c *gin.Context) {
	policy := c.Param("policy")
	key := c.ClientIP()
	if id, ok := auth.CurrentIdentity(c); ok {
		key = id.WalletAddress
	}
	ua := c.GetHeader("User-Agent")
	if ua == "" {
		ua = "unknown"
	}

	res := h.guard.Peek(c.Request.Context(), policy, key+"_"+ua)
	sendSuccess(c, http.StatusOK, gin.H{
		"allowed":   res.Allowed,
		"limit":     res.Limit,
		"remaining": res.Remaining,
		"resetAt":   res.ResetAt.Unix(),
	})
}

// PenalizeRequest is the body of the admin penalty endpoint.
type PenalizeRequest struct {
	Key string `json:"key" binding:"required"`
}

// Penalize puts a key on the suspicious blocklist.
func (h *RateLimitHandler) Penalize(c *gin.Context) {
	var req PenalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "key is required"})
		return
	}

	h.guard.Penalize(c.Request.Context(), req.Key)
	sendSuccess(c, http.StatusOK, gin.H{"message": "key penalized"})
}
