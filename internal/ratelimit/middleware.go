package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ubuntu-health/sponsorship-api/internal/auth"
	"github.com/ubuntu-health/sponsorship-api/internal/logger"
)

// clientKey builds the budget key for a request: the authenticated
// wallet when present, otherwise the client IP, combined with a
// user-agent fingerprint.
func clientKey(c *gin.Context) string {
	principal := c.ClientIP()
	if id, ok := auth.CurrentIdentity(c); ok {
		principal = id.WalletAddress
	}
	ua := c.GetHeader("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	return fmt.Sprintf("%s_%s", principal, ua)
}

// Middleware throttles requests against the named policy. Throttled
// responses carry Retry-After and X-RateLimit-* headers.
func (g *Guard) Middleware(policyName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		res := g.Consume(c.Request.Context(), policyName, key)

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
		if !res.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt.Unix()))
		}

		if !res.Allowed {
			retryAfter := int(res.RetryAfter / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

			logger.Warn("Rate limit exceeded",
				zap.String("policy", policyName),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))

			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests",
				"code":       "RATE_LIMIT_EXCEEDED",
				"retryAfter": retryAfter,
				"limit":      res.Limit,
				"remaining":  res.Remaining,
			})
			return
		}

		c.Next()
	}
}

// BlockSuspicious rejects requests from keys on the penalty blocklist
// before any budget is consumed.
func (g *Guard) BlockSuspicious() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := clientKey(c)
		if g.Blocked(c.Request.Context(), key) {
			logger.Warn("Suspicious activity blocked",
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()))

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied due to suspicious activity",
				"code":  "SUSPICIOUS_ACTIVITY_BLOCKED",
			})
			return
		}
		c.Next()
	}
}
