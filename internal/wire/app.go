package wire

import (
	"context"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"github.com/imrysn/kmti-icad-hub/internal/application/auth"
	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/redis"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/tabular"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/handler"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/router"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/utils"
)

// Core 应用服务层依赖容器，HTTP 网关与命令行共用
type Core struct {
	Config *config.Config
	Data   *DataLayer

	// Redis 未启用时为 nil
	Redis *redis.Client
	Cache *redis.Cache

	Embedder einoembedding.Embedder
	// 向量后端不可用时为 nil，检索与入库返回 ErrVectorDisabled
	Store retrieval.VectorStore

	Retrieval *retrieval.Service
	Pipeline  *ingestion.Pipeline
	Media     *ingestion.MediaImporter
	Auth      *auth.Service
}

// CoreOptions 控制可选依赖的失败策略
type CoreOptions struct {
	// RequireVector 为 true 时向量后端不可用直接返回错误（命令行入库），
	// 否则记录告警并以禁用向量功能的方式启动（网关）
	RequireVector bool
}

// InitializeCore 初始化数据层、缓存、向量后端与应用服务
func InitializeCore(ctx context.Context, cfg *config.Config, opts CoreOptions) (*Core, func(), error) {
	var cl cleanups

	data, cleanup, err := InitializeDataLayer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	cl.add(cleanup)

	core := &Core{Config: cfg, Data: data}

	redisClient, cleanup := ProvideRedisClientOptional(ctx, cfg)
	cl.add(cleanup)
	if redisClient != nil {
		core.Redis = redisClient
		core.Cache = redis.NewCache(redisClient)
	}

	embedder, err := ProvideEmbedder(ctx, cfg, core.Cache)
	if err != nil {
		if opts.RequireVector {
			cl.run()
			return nil, nil, err
		}
		logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
	}
	core.Embedder = embedder

	if embedder != nil {
		store, cleanup, err := ProvideVectorStore(ctx, cfg, data, embedder)
		switch {
		case err == nil:
			cl.add(cleanup)
			core.Store = store
		case opts.RequireVector:
			cl.run()
			return nil, nil, err
		default:
			logger.Warn(ctx, "vector store not available, vector features disabled",
				"backend", cfg.Vector.Backend,
				"error", err.Error(),
			)
		}
	}

	reader := tabular.NewReader()
	core.Retrieval = retrieval.NewService(core.Store, data.Media, cfg.Vector.DefaultTopK)
	core.Pipeline = ingestion.NewPipeline(core.Store, reader)
	core.Media = ingestion.NewMediaImporter(data.Media, reader)
	core.Auth = auth.NewService(data.Users, utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		cfg.Security.JWT.Issuer,
		cfg.Security.JWT.Expiration,
	))

	return core, cl.run, nil
}

// InitializeApp 初始化整个应用（带路由器）
func InitializeApp(ctx context.Context, cfg *config.Config) (*router.Router, func(), error) {
	core, cleanup, err := InitializeCore(ctx, cfg, CoreOptions{})
	if err != nil {
		return nil, nil, err
	}

	r := router.New(cfg, router.Deps{
		Authenticator: core.Auth,
		RateLimiter:   ProvideRateLimiter(core),
		Health:        handler.NewHealthHandler(cfg.App.Version, healthDependencies(core)...),
		Auth:          handler.NewAuthHandler(core.Auth),
		Search:        handler.NewSearchHandler(core.Retrieval),
		KnowledgeBase: handler.NewKnowledgeBaseHandler(core.Retrieval, core.Pipeline, handler.IngestDefaults{
			Dir:     cfg.Ingestion.KnowledgeBaseDir,
			Pattern: cfg.Ingestion.Pattern,
			Columns: cfg.Ingestion.TextColumns,
		}),
		Media: handler.NewMediaHandler(core.Media, core.Data.Media),
	})
	return r, cleanup, nil
}

// ProvideRateLimiter 有 Redis 时使用分布式滑动窗口，否则使用进程内令牌桶
func ProvideRateLimiter(core *Core) middleware.RateLimiter {
	if core.Redis != nil {
		return redis.NewRateLimiter(core.Redis)
	}
	return middleware.NewLocalRateLimiter(core.Config.Security.RateLimit.Burst)
}

// healthDependencies 只登记实际启用的依赖，避免把 nil 指针装进接口
func healthDependencies(core *Core) []handler.Dependency {
	deps := []handler.Dependency{
		{Name: core.Data.Driver, Checker: core.Data, Required: true},
	}
	if core.Redis != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: core.Redis})
	}
	deps = append(deps, handler.Dependency{Name: core.Config.Vector.Backend, Checker: vectorCheck{store: core.Store}})
	return deps
}

// vectorCheck 以集合统计作为向量后端的探活
type vectorCheck struct {
	store retrieval.VectorStore
}

func (c vectorCheck) HealthCheck(ctx context.Context) error {
	if c.store == nil {
		return retrieval.ErrVectorDisabled
	}
	_, err := c.store.Stats(ctx)
	return err
}
