package embedding

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/imrysn/kmti-icad-hub/internal/config"
)

// New 按配置创建 Embedder
func New(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case config.EmbeddingProviderOpenAI:
		return NewOpenAIEmbedder(ctx, cfg)
	case config.EmbeddingProviderHTTP:
		return NewHTTPClient(cfg), nil
	case config.EmbeddingProviderHash, "":
		return NewHashEmbedder(cfg.Dimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// CacheNamespace 缓存键前缀，模型或维度变化后旧缓存自动失效
func CacheNamespace(cfg *config.EmbeddingConfig) string {
	return cfg.Provider + ":" + cfg.Model + ":" + strconv.Itoa(cfg.Dimension)
}
