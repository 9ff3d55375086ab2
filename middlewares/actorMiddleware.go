package middlewares

import (
	"context"

	"bitbucket.org/mmdatafocus/counts_backend/config"
	"bitbucket.org/mmdatafocus/counts_backend/models"
	"bitbucket.org/mmdatafocus/counts_backend/utils"
	"github.com/gin-gonic/gin"
)

// ActorMiddleware resolves the session username into the acting user
// record (id, display name, business) used for tenant scoping and
// phase attribution. Redis first, DB fallback.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		username, ok := utils.GetUsernameFromContext(c.Request.Context())
		if !ok || username == "" {
			c.Next()
			return
		}

		var user models.User
		exists, err := config.GetRedisObject("User:"+username, &user)
		if err != nil || !exists {
			db := config.GetDB()
			if db == nil {
				c.Next()
				return
			}
			if err := db.WithContext(c.Request.Context()).
				Where("username = ?", username).Take(&user).Error; err != nil {
				c.Next()
				return
			}
			_ = config.SetRedisObject("User:"+username, &user, utils.GetCacheLifespan())
		}

		ctx := c.Request.Context()
		ctx = context.WithValue(ctx, utils.ContextKeyBusinessId, user.BusinessId)
		ctx = context.WithValue(ctx, utils.ContextKeyUserId, user.ID)
		ctx = context.WithValue(ctx, utils.ContextKeyUserName, user.Name)
		if user.Role == models.UserRoleAdmin {
			ctx = context.WithValue(ctx, utils.ContextKeyIsAdmin, true)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
