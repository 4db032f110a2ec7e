package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

// LoadingCache 读穿缓存，由 redis.Cache 实现
type LoadingCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
}

// CachedEmbedder 对单条文本（查询）的向量做缓存；批量入库直接透传。
// 缓存不可用时回退到直接调用底层 Embedder。
type CachedEmbedder struct {
	inner     embedding.Embedder
	cache     LoadingCache
	namespace string
	ttl       time.Duration
}

var _ embedding.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder 创建带缓存的 Embedder；namespace 区分不同模型与维度
func NewCachedEmbedder(inner embedding.Embedder, cache LoadingCache, namespace string, ttl time.Duration) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{inner: inner, cache: cache, namespace: namespace, ttl: ttl}
}

// GetType 沿用底层 Embedder 的类型，指标按实际提供方归类
func (c *CachedEmbedder) GetType() string {
	return typeOf(c.inner)
}

// IsCallbacksEnabled 底层组件自行触发 callbacks 时，外层不再重复触发
func (c *CachedEmbedder) IsCallbacksEnabled() bool {
	return components.IsCallbacksEnabled(c.inner)
}

// EmbedStrings 实现 embedding.Embedder
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) != 1 {
		return c.inner.EmbedStrings(ctx, texts, opts...)
	}

	loaded := false
	raw, err := c.cache.GetOrLoadSafe(ctx, c.key(texts[0]), c.ttl, func() (interface{}, error) {
		loaded = true
		vectors, err := c.inner.EmbedStrings(ctx, texts, opts...)
		if err != nil {
			return nil, err
		}
		if len(vectors) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
		}
		return vectors[0], nil
	})
	if err != nil {
		if loaded {
			return nil, err
		}
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "embedding cache unavailable, calling embedder directly", "error", err.Error())
		return c.inner.EmbedStrings(ctx, texts, opts...)
	}

	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		metrics.EmbeddingCacheTotal.WithLabelValues("error").Inc()
		return c.inner.EmbedStrings(ctx, texts, opts...)
	}

	if loaded {
		metrics.EmbeddingCacheTotal.WithLabelValues("miss").Inc()
	} else {
		metrics.EmbeddingCacheTotal.WithLabelValues("hit").Inc()
	}
	return [][]float64{vec}, nil
}

func (c *CachedEmbedder) key(text string) string {
	return "emb:" + c.namespace + ":" + strconv.FormatUint(xxhash.Sum64String(text), 16)
}
