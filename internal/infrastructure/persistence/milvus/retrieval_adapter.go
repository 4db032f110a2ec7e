package milvus

import (
	"context"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	embeddings "github.com/imrysn/kmti-icad-hub/internal/infrastructure/embedding"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

const backendName = "milvus"

// VectorStore 基于 Milvus 的知识库向量集合
type VectorStore struct {
	repo      *Repository
	embedder  embedding.Embedder
	batchSize int
}

var (
	_ retrieval.VectorStore = (*VectorStore)(nil)
	_ retrieval.Reindexer   = (*VectorStore)(nil)
)

// NewVectorStore 创建向量集合适配器并确保集合存在
func NewVectorStore(ctx context.Context, repo *Repository, embedder embedding.Embedder, batchSize int) (*VectorStore, error) {
	if repo == nil {
		return nil, retrieval.ErrVectorDisabled
	}
	if err := repo.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	return &VectorStore{repo: repo, embedder: embedder, batchSize: batchSize}, nil
}

// Ingest 向量化并 upsert
func (s *VectorStore) Ingest(ctx context.Context, docs []*entity.Document) (err error) {
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "ingest", start, err) }(time.Now())

	if err := retrieval.ValidateDocuments(docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := embeddings.EmbedTexts(ctx, s.embedder, texts, s.batchSize)
	if err != nil {
		return err
	}

	rows := make([]*KnowledgeRow, len(docs))
	for i, d := range docs {
		rows[i] = &KnowledgeRow{
			ID:          d.ID,
			Vector:      vectors[i],
			Source:      d.Metadata.Source,
			RowIndex:    int64(d.Metadata.Row),
			Path:        d.Metadata.Path,
			TextContent: d.Text,
		}
	}
	return s.repo.Upsert(ctx, rows)
}

// Query 检索 k 条命中
func (s *VectorStore) Query(ctx context.Context, text string, k int) (hits []retrieval.RetrievedHit, err error) {
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "query", start, err) }(time.Now())

	if k <= 0 {
		k = retrieval.DefaultTopK
	}
	vector, err := embeddings.EmbedQuery(ctx, s.embedder, text)
	if err != nil {
		return nil, err
	}

	results, err := s.repo.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}

	metric := s.repo.metricType()
	hits = make([]retrieval.RetrievedHit, 0, len(results))
	for _, r := range results {
		distance := distanceFromScore(metric, r.Score)
		hits = append(hits, retrieval.RetrievedHit{
			ID:      r.ID,
			Content: r.TextContent,
			Source:  r.Source,
			Row:     int(r.RowIndex),
			Score:   retrieval.ScoreFromDistance(&distance),
		})
	}
	return hits, nil
}

// distanceFromScore L2 返回的是距离；COSINE / IP 返回相似度
func distanceFromScore(metric milvusentity.MetricType, score float32) float64 {
	if metric == milvusentity.L2 {
		return float64(score)
	}
	return 1 - float64(score)
}

// Stats 返回集合统计
func (s *VectorStore) Stats(ctx context.Context) (*retrieval.CollectionStats, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &retrieval.CollectionStats{
		DocumentCount:   count,
		CollectionName:  s.repo.Collection(),
		StorageLocation: s.repo.client.config.Addr(),
		Backend:         backendName,
	}, nil
}

// Clear 删除并以同名重建集合
func (s *VectorStore) Clear(ctx context.Context) (err error) {
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "clear", start, err) }(time.Now())

	if err := s.repo.Drop(ctx); err != nil {
		return err
	}
	return s.repo.EnsureCollection(ctx)
}

// Reindex 释放集合后重建向量索引并重新加载
func (s *VectorStore) Reindex(ctx context.Context) (err error) {
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "reindex", start, err) }(time.Now())
	return s.repo.RebuildIndex(ctx)
}
