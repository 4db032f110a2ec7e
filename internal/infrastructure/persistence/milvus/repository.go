package milvus

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// consistencyLevel 写入后立即可查；默认的 Bounded 会漏掉刚写入的行
const consistencyLevel = entity.ClStrong

// readOptions 检索与计数统一使用的一致性级别，覆盖集合上的默认值
func readOptions() []client.SearchQueryOptionFunc {
	return []client.SearchQueryOptionFunc{client.WithSearchQueryConsistencyLevel(consistencyLevel)}
}

// Repository 知识库集合仓储
type Repository struct {
	client     *Client
	collection string
	dim        int
}

// NewRepository 创建集合仓储
func NewRepository(client *Client, collection string, dim int) *Repository {
	return &Repository{client: client, collection: collection, dim: dim}
}

// Collection 集合名
func (r *Repository) Collection() string {
	return r.collection
}

// SearchResult 检索结果，Score 为度量原始值
type SearchResult struct {
	ID          string
	Score       float32
	Source      string
	RowIndex    int64
	TextContent string
}

func (r *Repository) ready() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

// metricType 配置的度量类型，默认 COSINE
func (r *Repository) metricType() entity.MetricType {
	switch strings.ToUpper(r.client.config.MetricType) {
	case "L2":
		return entity.L2
	case "IP":
		return entity.IP
	default:
		return entity.COSINE
	}
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", r.collection)))
	defer span.End()

	err := r.client.milvus.CreateCollection(ctx, KnowledgeBaseSchema(r.collection, r.dim), entity.DefaultShardNumber,
		client.WithConsistencyLevel(consistencyLevel))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", r.collection)))
	defer span.End()

	idx, err := entity.NewIndexHNSW(
		r.metricType(),
		r.client.config.HNSWM,
		r.client.config.HNSWEfConstruction,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.collection, FieldVector, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsureCollection 确保集合与索引可用并已加载（不存在则创建）
func (r *Repository) EnsureCollection(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}

	exists, err := r.client.HasCollection(ctx, r.collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := r.CreateCollection(ctx); err != nil {
			return err
		}
		if err := r.CreateIndex(ctx); err != nil {
			return err
		}
	}
	return r.client.LoadCollection(ctx, r.collection)
}

// Upsert 按主键写入或覆盖
func (r *Repository) Upsert(ctx context.Context, rows []*KnowledgeRow) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("collection", r.collection),
			attribute.Int("count", len(rows)),
		))
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	vectors := make([][]float32, len(rows))
	sources := make([]string, len(rows))
	rowIndexes := make([]int64, len(rows))
	paths := make([]string, len(rows))
	texts := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
		vectors[i] = row.Vector
		sources[i] = row.Source
		rowIndexes[i] = row.RowIndex
		paths[i] = row.Path
		texts[i] = row.TextContent
	}

	_, err := r.client.milvus.Upsert(ctx, r.collection, "",
		entity.NewColumnVarChar(FieldID, ids),
		entity.NewColumnFloatVector(FieldVector, r.dim, vectors),
		entity.NewColumnVarChar(FieldSource, sources),
		entity.NewColumnInt64(FieldRowIndex, rowIndexes),
		entity.NewColumnVarChar(FieldPath, paths),
		entity.NewColumnVarChar(FieldTextContent, texts),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert rows: %w", err)
	}
	return nil
}

// Search 向量检索 topK
func (r *Repository) Search(ctx context.Context, vector []float32, topK int) ([]*SearchResult, error) {
	if err := r.ready(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", r.collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	ef := r.client.config.SearchEf
	if ef < topK {
		ef = topK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	results, err := r.client.milvus.Search(ctx,
		r.collection,
		nil,
		"",
		[]string{FieldSource, FieldRowIndex, FieldTextContent},
		[]entity.Vector{entity.FloatVector(vector)},
		FieldVector,
		r.metricType(),
		topK,
		sp,
		readOptions()...,
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var out []*SearchResult
	for _, result := range results {
		idCol, _ := result.IDs.(*entity.ColumnVarChar)
		sourceCol, _ := result.Fields.GetColumn(FieldSource).(*entity.ColumnVarChar)
		rowCol, _ := result.Fields.GetColumn(FieldRowIndex).(*entity.ColumnInt64)
		textCol, _ := result.Fields.GetColumn(FieldTextContent).(*entity.ColumnVarChar)

		for i := 0; i < result.ResultCount; i++ {
			sr := &SearchResult{Score: result.Scores[i]}
			if idCol != nil {
				sr.ID = idCol.Data()[i]
			}
			if sourceCol != nil {
				sr.Source = sourceCol.Data()[i]
			}
			if rowCol != nil {
				sr.RowIndex = rowCol.Data()[i]
			}
			if textCol != nil {
				sr.TextContent = textCol.Data()[i]
			}
			out = append(out, sr)
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(out)))
	return out, nil
}

// Count 统计集合中的实体数（已删除的不计入）
func (r *Repository) Count(ctx context.Context) (int64, error) {
	if err := r.ready(); err != nil {
		return 0, err
	}
	ctx, span := tracer.Start(ctx, "milvus.Count",
		trace.WithAttributes(attribute.String("collection", r.collection)))
	defer span.End()

	cols, err := r.client.milvus.Query(ctx, r.collection, nil, "", []string{"count(*)"}, readOptions()...)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return countFromColumns(cols)
}

func countFromColumns(cols []entity.Column) (int64, error) {
	for _, col := range cols {
		if col.Name() != "count(*)" {
			continue
		}
		if c, ok := col.(*entity.ColumnInt64); ok && len(c.Data()) > 0 {
			return c.Data()[0], nil
		}
	}
	return 0, fmt.Errorf("count(*) column missing from query result")
}

// Drop 删除集合
func (r *Repository) Drop(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.Drop",
		trace.WithAttributes(attribute.String("collection", r.collection)))
	defer span.End()

	exists, err := r.client.HasCollection(ctx, r.collection)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !exists {
		return nil
	}
	if err := r.client.milvus.DropCollection(ctx, r.collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// RebuildIndex 重建索引
func (r *Repository) RebuildIndex(ctx context.Context) error {
	if err := r.ready(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.RebuildIndex",
		trace.WithAttributes(attribute.String("collection", r.collection)))
	defer span.End()

	if err := r.client.milvus.ReleaseCollection(ctx, r.collection); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to release collection: %w", err)
	}

	// 索引可能不存在
	_ = r.client.milvus.DropIndex(ctx, r.collection, FieldVector)

	if err := r.CreateIndex(ctx); err != nil {
		return err
	}
	return r.client.LoadCollection(ctx, r.collection)
}
