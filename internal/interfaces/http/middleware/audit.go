package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// AuditConfig 审计配置
type AuditConfig struct {
	// Enabled 是否启用审计
	Enabled bool
	// SkipPaths 跳过审计的路径
	SkipPaths []string
}

// Audit 审计日志中间件
// 写操作与失败请求记 Info，其余记 Debug
func Audit(cfg AuditConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	skipMap := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skipMap[path] = true
	}

	return func(c *gin.Context) {
		if skipMap[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"username", c.GetString("username"),
			"request_id", c.GetString("request_id"),
		}

		ctx := c.Request.Context()
		if c.Request.Method != "GET" || c.Writer.Status() >= 400 {
			logger.Info(ctx, "api audit", fields...)
			return
		}
		logger.Debug(ctx, "api audit", fields...)
	}
}

// DefaultAuditSkipPaths 默认跳过审计的路径
var DefaultAuditSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}
