package middleware

import (
	"context"
	"net/http"
	"strings"

	"Green_Community/internal/pkg"

	"github.com/gin-gonic/gin"
)

const ContextUserIDKey = "user_id"

// Authenticator 校验 access token 并返回用户 id
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (uint64, error)
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "invalid authorization format")
			return
		}

		// token 签名、过期以及 redis 中的会话都在 Authenticate 里校验，通过后会话续期
		userID, err := auth.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": msg, "code": pkg.ErrorCode(pkg.ErrUnauthorized)})
}
