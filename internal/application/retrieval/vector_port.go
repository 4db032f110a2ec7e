package retrieval

import (
	"context"
	"fmt"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// DefaultTopK 未指定 k 时的召回数量
const DefaultTopK = 5

// VectorStore 定义应用层对“向量集合”的最小依赖（port）。
// 由基础设施层提供具体实现（Milvus / pgvector / SQLite）。
// Embedding 函数在构造时绑定，入库与查询使用同一个模型。
type VectorStore interface {
	// Ingest 写入文档；同 ID 覆盖（按 ID 幂等）。任一文档缺少 ID 时整批失败。
	Ingest(ctx context.Context, docs []*entity.Document) error

	// Query 按距离升序返回至多 k 条命中；集合为空时返回空切片。
	Query(ctx context.Context, text string, k int) ([]RetrievedHit, error)

	// Stats 返回集合统计信息
	Stats(ctx context.Context) (*CollectionStats, error)

	// Clear 删除并以同名重建空集合
	Clear(ctx context.Context) error
}

// Reindexer 可选能力：重建向量索引（SQLite 实现为暴力检索，没有索引）
type Reindexer interface {
	Reindex(ctx context.Context) error
}

// MediaLookup 检索服务对媒体关联存储的依赖
type MediaLookup interface {
	FindByIdentifierFragments(ctx context.Context, fragments []string) ([]*entity.MediaRecord, error)
}

// CollectionStats 向量集合统计
type CollectionStats struct {
	DocumentCount   int64  `json:"total_documents"`
	CollectionName  string `json:"collection_name"`
	StorageLocation string `json:"persist_directory"`
	Backend         string `json:"backend"`
}

// ScoreFromDistance 将距离转换为相似度 1 - distance，不做截断。
// 后端未返回距离时得到 nil。
func ScoreFromDistance(distance *float64) *float64 {
	if distance == nil {
		return nil
	}
	score := 1 - *distance
	return &score
}

// ValidateDocuments 任一文档缺少 ID 时整批拒绝
func ValidateDocuments(docs []*entity.Document) error {
	for i, doc := range docs {
		if err := doc.Validate(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeIngestionFailed, "invalid document").
				WithDetail(fmt.Sprintf("document %d: %v", i, err))
		}
	}
	return nil
}
