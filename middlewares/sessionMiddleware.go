package middlewares

import (
	"context"
	"net/http"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/gin-gonic/gin"
)

// SessionMiddleware resolves the auth token into the acting user's
// username via Redis. Requests without a token continue anonymous;
// individual handlers decide whether identity is required.
func SessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Request.Header.Get("token")
		if token == "" {
			c.Next()
			return
		}
		username, exists, err := config.GetRedisValue("Token:" + token)
		if err != nil || !exists {
			// Service callers carry a signed JWT instead of a Redis
			// session.
			parsed, jerr := utils.JwtValidate(token)
			if jerr != nil || !parsed.Valid {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
			if claims, ok := parsed.Claims.(*utils.JwtCustomClaim); ok {
				username = claims.Subject
			}
			if username == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				c.Abort()
				return
			}
		}

		ctx := context.WithValue(c.Request.Context(), utils.ContextKeyToken, token)
		ctx = context.WithValue(ctx, utils.ContextKeyUsername, username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
