package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRole must be mounted after RequireAuth; without an identity on
// the context it rejects with 401, never 403.
func (m *AuthMiddleware) RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := UserFromContext(c)

		if !ok || u.Role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"status":  "fail",
				"message": "Missing identity context",
			})
			return
		}

		for _, role := range allowed {
			if u.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"status":  "fail",
			"message": "You do not have permission to perform this action",
		})
	}
}
