package middleware

import (
	"net/http" // HTTP status codes

	"cashback_bot/internal/utils" // Role constants

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdminOnlyMiddleware admits only tokens issued to the configured admin
func AdminOnlyMiddleware(adminUsername string) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := c.GetString(CtxSubject) // Set by JWTAuthMiddleware
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// A token for a renamed admin account stops working immediately
		if c.GetString(CtxRole) != utils.RoleAdmin || subject != adminUsername {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next()
	}
}
