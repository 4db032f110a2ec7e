// Package wire 提供依赖装配
package wire

import (
	"context"
	"fmt"
	"path/filepath"

	einoembedding "github.com/cloudwego/eino/components/embedding"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	infraembedding "github.com/imrysn/kmti-icad-hub/internal/infrastructure/embedding"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/milvus"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/pgvector"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/postgres"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/redis"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/sqlite"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// VectorDBFile SQLite 向量后端在 vector.sqlite_path 目录下的文件名
const VectorDBFile = "vectors.db"

// cleanups 按注册的逆序释放资源
type cleanups []func()

func (c *cleanups) add(fn func()) {
	*c = append(*c, fn)
}

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// DataLayer 关系数据层依赖容器
type DataLayer struct {
	Driver string
	Users  repository.UserRepository
	Media  repository.MediaRepository

	// 二选一，未使用的为 nil
	Postgres *postgres.Client
	SQLite   *sqlite.DB
}

// HealthCheck 检查当前关系库连接
func (d *DataLayer) HealthCheck(ctx context.Context) error {
	if d.Postgres != nil {
		return d.Postgres.HealthCheck(ctx)
	}
	return d.SQLite.HealthCheck(ctx)
}

// InitializeDataLayer 初始化关系库并执行迁移；未配置 Postgres 时回退到 SQLite
func InitializeDataLayer(ctx context.Context, cfg *config.Config) (*DataLayer, func(), error) {
	if cfg.UsePostgres() {
		client, cleanup, err := ProvidePostgresClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return &DataLayer{
			Driver:   config.DatabaseDriverPostgres,
			Users:    postgres.NewUserRepository(client),
			Media:    postgres.NewMediaRepository(client),
			Postgres: client,
		}, cleanup, nil
	}

	if cfg.Database.Driver == config.DatabaseDriverPostgres {
		logger.Warn(ctx, "postgres host not configured, falling back to sqlite", "path", cfg.Database.SQLite.Path)
	}
	db, cleanup, err := ProvideSQLite(ctx, cfg.Database.SQLite.Path, cfg)
	if err != nil {
		return nil, nil, err
	}
	return &DataLayer{
		Driver: config.DatabaseDriverSQLite,
		Users:  sqlite.NewUserRepository(db),
		Media:  sqlite.NewMediaRepository(db),
		SQLite: db,
	}, cleanup, nil
}

// ProvidePostgresClient 提供 PostgreSQL 客户端并迁移表结构
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := client.AutoMigrate(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup, nil
}

// ProvideSQLite 打开 SQLite 数据库并迁移表结构
func ProvideSQLite(ctx context.Context, path string, cfg *config.Config) (*sqlite.DB, func(), error) {
	db, err := sqlite.Open(path, cfg.Database.SQLite.BusyTimeout)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	cleanup := func() {
		db.Close()
	}
	return db, cleanup, nil
}

// ProvideRedisClientOptional 提供 Redis 客户端；未启用或不可达时返回 nil
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func()) {
	if !cfg.Cache.Redis.Enabled {
		return nil, func() {}
	}
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		logger.Warn(ctx, "redis not available, cache and distributed rate limit disabled", "error", err.Error())
		return nil, func() {}
	}
	cleanup := func() {
		client.Close()
	}
	return client, cleanup
}

// ProvideEmbedder 提供 Embedder；有 Redis 时对查询向量做缓存
func ProvideEmbedder(ctx context.Context, cfg *config.Config, cache *redis.Cache) (einoembedding.Embedder, error) {
	embedder, err := infraembedding.New(ctx, &cfg.Embedding)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return embedder, nil
	}
	return infraembedding.NewCachedEmbedder(embedder, cache, infraembedding.CacheNamespace(&cfg.Embedding), cfg.Embedding.CacheTTL), nil
}

// ProvideVectorStore 按配置的后端构造向量集合
func ProvideVectorStore(ctx context.Context, cfg *config.Config, data *DataLayer, embedder einoembedding.Embedder) (retrieval.VectorStore, func(), error) {
	vc := cfg.Vector
	batchSize := cfg.Embedding.BatchSize

	switch vc.Backend {
	case config.VectorBackendMilvus:
		client, err := milvus.NewClient(ctx, &vc.Milvus)
		if err != nil {
			return nil, nil, err
		}
		repo := milvus.NewRepository(client, vc.CollectionName, cfg.Embedding.Dimension)
		store, err := milvus.NewVectorStore(ctx, repo, embedder, batchSize)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		return store, func() { client.Close() }, nil

	case config.VectorBackendPGVector:
		if data.Postgres == nil {
			return nil, nil, fmt.Errorf("vector backend %q requires a postgres connection", vc.Backend)
		}
		store, err := pgvector.NewVectorStore(ctx, data.Postgres.DB(), embedder, pgvector.Options{
			Collection:      vc.CollectionName,
			Dimension:       cfg.Embedding.Dimension,
			Location:        cfg.Database.Postgres.Host,
			BatchSize:       batchSize,
			CreateExtension: vc.PGVector.CreateExtension,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.VectorBackendSQLite:
		// 向量表由 VectorStore 自行建立，不执行关系表迁移
		db, err := sqlite.Open(filepath.Join(vc.SQLitePath, VectorDBFile), cfg.Database.SQLite.BusyTimeout)
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlite.NewVectorStore(ctx, db, vc.CollectionName, embedder, batchSize)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, func() { db.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown vector backend %q", vc.Backend)
	}
}
