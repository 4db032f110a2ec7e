// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/handler"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
)

// Deps 路由依赖的处理器与中间件组件
type Deps struct {
	Authenticator middleware.Authenticator
	RateLimiter   middleware.RateLimiter

	Health        *handler.HealthHandler
	Auth          *handler.AuthHandler
	Search        *handler.SearchHandler
	KnowledgeBase *handler.KnowledgeBaseHandler
	Media         *handler.MediaHandler
}

// Router HTTP 路由器
type Router struct {
	engine *gin.Engine
	cfg    *config.Config
	deps   Deps
}

// New 创建路由器
func New(cfg *config.Config, deps Deps) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine: gin.New(),
		cfg:    cfg,
		deps:   deps,
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置全局中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics(r.cfg.Observability.Metrics.Path))
	}

	r.engine.Use(middleware.Audit(middleware.AuditConfig{
		Enabled:   true,
		SkipPaths: middleware.DefaultAuditSkipPaths,
	}))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes() {
	d := r.deps

	// 系统端点
	r.engine.GET("/health", d.Health.Health)
	r.engine.GET("/ready", d.Health.Ready)
	r.engine.GET("/live", d.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.GET(r.cfg.Observability.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	rateLimit := middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
	}, d.RateLimiter)
	authed := middleware.Auth(d.Authenticator)

	// 旧前端使用的检索入口
	r.engine.GET("/search", rateLimit, authed, d.Search.LegacySearch)

	v1 := r.engine.Group("/v1", rateLimit)

	// 认证
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", d.Auth.Register)
		authGroup.POST("/login", d.Auth.Login)
		authGroup.GET("/me", authed, d.Auth.Me)
		authGroup.POST("/logout", authed, d.Auth.Logout)
		authGroup.POST("/users", authed, middleware.RequireAdmin(), d.Auth.CreateUser)
	}

	protected := v1.Group("", authed)
	{
		protected.POST("/search", d.Search.Search)

		kb := protected.Group("/kb")
		{
			kb.GET("/stats", d.KnowledgeBase.Stats)
			kb.POST("/ingest", middleware.RequireAdmin(), d.KnowledgeBase.Ingest)
			kb.DELETE("", middleware.RequireAdmin(), d.KnowledgeBase.Clear)
		}

		media := protected.Group("/media/mappings")
		{
			media.GET("", middleware.RequireRole(entity.UserRoleEmployee), d.Media.List)
			media.POST("", middleware.RequireAdmin(), d.Media.BulkCreate)
		}
	}
}
