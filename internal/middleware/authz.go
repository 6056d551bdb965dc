package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"inverapp/internal/authz"
)

func RequireUserTypes(allowed ...string) gin.HandlerFunc {
	allowedSet := map[string]struct{}{}
	for _, t := range allowed {
		allowedSet[t] = struct{}{}
	}
	return func(c *gin.Context) {
		v, exists := c.Get("user_type")
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no user type in context"})
			return
		}
		userType, _ := v.(string)
		if _, ok := allowedSet[userType]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return RequireUserTypes(authz.UserTypeAdmin)
}

func ReadOnlyGuard() gin.HandlerFunc {
	// аудитор только читает
	return func(c *gin.Context) {
		v, _ := c.Get("user_type")
		userType, _ := v.(string)
		if authz.IsReadOnly(userType) {
			switch c.Request.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				// ok
			default:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "read-only role"})
				return
			}
		}
		c.Next()
	}
}
