package middleware

import (
	"net/http"
	"strings"

	"github.com/clipsyncapp/api-clipsync/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Context keys set by the middlewares
const (
	CtxHandle         = "handle"
	CtxAccountID      = "account_id"
	CtxLinkID         = "link_id"
	CtxInstallationID = "installation_id"
)

// HeaderInstallationID identifies the calling device on nearly all calls
const HeaderInstallationID = "Installation-Id"

// AuthMiddleware validates bearer access tokens and injects the claims.
// A token without a handle claim is rejected; the client treats the 401
// as a forced logout.
func AuthMiddleware(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format. Use: Bearer <token>"})
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// The header must name the same device the token was issued to.
		if headerID, ok := c.Get(CtxInstallationID); ok {
			if headerID.(uuid.UUID) != claims.InstallationID {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Installation mismatch"})
				return
			}
		}

		c.Set(CtxHandle, claims.Handle)
		c.Set(CtxAccountID, claims.AccountID)
		c.Set(CtxLinkID, claims.LinkID)
		c.Set(CtxInstallationID, claims.InstallationID)

		c.Next()
	}
}

// InstallationMiddleware requires and parses the Installation-Id header.
// Registration (PUT /installations) is exempt: it must be callable before
// any id exists, otherwise registration could never happen.
func InstallationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderInstallationID)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Installation-Id header required"})
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Installation-Id must be a UUID"})
			return
		}
		c.Set(CtxInstallationID, id)
		c.Next()
	}
}
