package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vijay324/expense-tracker-sub000/internal/infrastructure/logger"
)

const contextUserKey = "auth.user_id"

// Middleware rejects unauthenticated requests before any stream or mutation
// handler runs, and stashes the resolved user id in the request context.
func Middleware(ident Identity, log logger.Logger) gin.HandlerFunc {
	authLog := log.WithField("middleware", "auth")

	return func(c *gin.Context) {
		userID, err := ident.Resolve(c.Request)
		if err != nil {
			authLog.Debugf("rejected %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		c.Set(contextUserKey, userID)
		c.Next()
	}
}

// UserID returns the authenticated user id placed by Middleware, or "" when
// the request was not authenticated.
func UserID(c *gin.Context) string {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return ""
	}
	id, _ := v.(string)
	return id
}
