package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ubuntu-health/sponsorship-api/internal/identity"
)

const identityKey = "identity"

// abortWithError writes a coded auth error response and stops the chain.
func abortWithError(c *gin.Context, err *Error) {
	c.AbortWithStatusJSON(err.Status, gin.H{
		"error": err.Message,
		"code":  err.Code,
	})
}

// Middleware authenticates requests with a bearer credential and
// stores the resulting identity on the request context.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || token == authHeader {
			abortWithError(c, ErrMissingToken)
			return
		}

		id, err := a.Authenticate(token)
		if err != nil {
			authErr, ok := err.(*Error)
			if !ok {
				authErr = ErrInvalidToken
			}
			abortWithError(c, authErr)
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// CurrentIdentity returns the authenticated identity for the request,
// if any.
func CurrentIdentity(c *gin.Context) (identity.Identity, bool) {
	v, exists := c.Get(identityKey)
	if !exists {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// RequireRoles rejects requests whose identity holds none of the
// allowed roles. It never downgrades silently: missing authentication
// is NOT_AUTHENTICATED, a wrong role is INSUFFICIENT_ROLE.
func RequireRoles(roles ...identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			abortWithError(c, ErrNotAuthenticated)
			return
		}

		for _, role := range roles {
			if id.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":    ErrInsufficientRole.Message,
			"code":     ErrInsufficientRole.Code,
			"required": roles,
			"current":  id.Role,
		})
	}
}

// RequireVerified rejects requests from unverified identities.
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			abortWithError(c, ErrNotAuthenticated)
			return
		}
		if !id.Verified {
			abortWithError(c, ErrNotVerified)
			return
		}
		c.Next()
	}
}
