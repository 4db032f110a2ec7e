// Package middleware 提供 HTTP 中间件
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// ContextUserKey 当前用户在 gin.Context 中的键
const ContextUserKey = "current_user"

// Authenticator 根据访问令牌加载用户
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*entity.User, error)
}

// Auth 认证中间件：校验 Bearer Token 并注入当前用户
func Auth(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 获取 Authorization Header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, apperrors.ErrTokenMissing)
			return
		}

		// 解析 Bearer Token，scheme 不区分大小写
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortWithError(c, apperrors.ErrTokenInvalid.WithDetail("invalid authorization format"))
			return
		}

		user, err := authenticator.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abortWithError(c, err)
			return
		}

		// 注入用户信息到 Context
		c.Set(ContextUserKey, user)
		c.Set("user_id", user.ID)
		c.Set("username", user.Username)
		c.Set("role", string(user.Role))

		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, user.ID)
		ctx = logger.WithContext(ctx, logger.UsernameKey, user.Username)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// CurrentUser 取出认证中间件注入的用户
func CurrentUser(c *gin.Context) *entity.User {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*entity.User)
	return user
}

// abortWithError 终止请求并按错误码返回
func abortWithError(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus == 401 {
		c.Header("WWW-Authenticate", "Bearer")
	}
	dto.AbortWithAppError(c, appErr)
}
