package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// RequireRole 角色检查中间件；管理员满足任何角色要求
func RequireRole(required entity.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			abortWithError(c, apperrors.ErrUnauthorized)
			return
		}

		if !entity.HasRole(user.Role, required) {
			abortWithError(c, apperrors.ErrPermissionDenied.WithDetail("requires role "+string(required)))
			return
		}

		c.Next()
	}
}

// RequireAdmin 管理员权限检查中间件（便捷方法）
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(entity.UserRoleAdmin)
}
