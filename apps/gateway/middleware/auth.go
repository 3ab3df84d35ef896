package middleware

import (
	"net/http"
	"strings"

	userModel "oldmarket/apps/user/model"
	"oldmarket/pkg/jwt"
	"oldmarket/pkg/response"

	"github.com/gin-gonic/gin"
)

// Context 中保存的当前用户信息
const (
	KeyUserID = "userId"
	KeyEmail  = "email"
	KeyRole   = "role"
)

func AuthMiddleware(jm *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 获取 Header 里的 Authorization
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		// 2. 格式必须是 "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			c.Abort()
			return
		}

		// 3. 解析 Token
		claims, err := jm.ParseToken(parts[1])
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid token")
			c.Abort()
			return
		}

		// 4. 用户信息存入 Context，供后续 Handler 使用
		c.Set(KeyUserID, claims.UserId)
		c.Set(KeyEmail, claims.Email)
		c.Set(KeyRole, claims.Role)

		c.Next()
	}
}

// AdminOnly 必须挂在 AuthMiddleware 之后
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsAdmin(c) {
			response.Error(c, http.StatusForbidden, "admin access required")
			c.Abort()
			return
		}
		c.Next()
	}
}

func UserID(c *gin.Context) uint {
	return c.GetUint(KeyUserID)
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(KeyRole) == userModel.RoleAdmin
}
