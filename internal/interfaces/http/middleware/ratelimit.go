package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	// Enabled 是否启用限流
	Enabled bool
	// RequestsPerSecond 每秒请求数
	RequestsPerSecond int
	// KeyFunc 生成限流键，默认 prefix:ip:path
	KeyFunc func(c *gin.Context) string
}

// RateLimiter 限流器接口，Redis 与进程内实现均满足
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 限流中间件
func RateLimit(cfg RateLimitConfig, limiter RateLimiter) gin.HandlerFunc {
	// 如果未启用限流，返回空中间件
	if !cfg.Enabled || limiter == nil {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 100
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return "ratelimit:" + c.ClientIP() + ":" + c.Request.URL.Path
		}
	}

	return func(c *gin.Context) {
		allowed, err := limiter.Allow(c.Request.Context(), cfg.KeyFunc(c), cfg.RequestsPerSecond, time.Second)
		if err != nil {
			// 限流器故障时放行，避免影响业务
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err.Error())
			c.Next()
			return
		}

		if !allowed {
			metrics.RateLimitRejected.WithLabelValues(c.Request.URL.Path).Inc()
			abortWithError(c, apperrors.ErrTooManyRequests)
			return
		}

		c.Next()
	}
}

// LocalRateLimiter 进程内令牌桶限流器，未启用 Redis 时使用
type LocalRateLimiter struct {
	mu       sync.Mutex
	burst    int
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter 创建进程内限流器；burst<=0 时与 limit 相同
func NewLocalRateLimiter(burst int) *LocalRateLimiter {
	return &LocalRateLimiter{
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow 每个 key 一个令牌桶，速率为 limit/window
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	l.mu.Lock()
	lim, ok := l.limiters[key]
	if !ok {
		burst := l.burst
		if burst <= 0 {
			burst = limit
		}
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), burst)
		l.limiters[key] = lim
	}
	l.mu.Unlock()

	return lim.Allow(), nil
}
