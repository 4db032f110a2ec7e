// Package pgvector 基于 PostgreSQL pgvector 扩展的知识库向量集合
package pgvector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	embeddings "github.com/imrysn/kmti-icad-hub/internal/infrastructure/embedding"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

const (
	backendName     = "pgvector"
	upsertBatchSize = 200
)

var (
	tracer = otel.Tracer("pgvector")

	collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// knowledgeRow 知识库表的一行
type knowledgeRow struct {
	ID          string     `gorm:"primaryKey;type:text"`
	Source      string     `gorm:"type:text;not null"`
	RowIndex    int        `gorm:"not null"`
	Path        string     `gorm:"type:text"`
	TextContent string     `gorm:"type:text;not null"`
	Embedding   pgv.Vector `gorm:"type:vector"`
	UpdatedAt   time.Time
}

// hitRow 查询结果
type hitRow struct {
	ID          string
	Source      string
	RowIndex    int
	TextContent string
	Distance    *float64
}

// VectorStore pgvector 向量集合
type VectorStore struct {
	db         *gorm.DB
	collection string
	dimension  int
	location   string
	embedder   embedding.Embedder
	batchSize  int
	createExt  bool
}

var (
	_ retrieval.VectorStore = (*VectorStore)(nil)
	_ retrieval.Reindexer   = (*VectorStore)(nil)
)

// Options 构造参数
type Options struct {
	Collection      string
	Dimension       int
	Location        string
	BatchSize       int
	CreateExtension bool
}

// NewVectorStore 创建 pgvector 集合并确保表与索引存在
func NewVectorStore(ctx context.Context, db *gorm.DB, embedder embedding.Embedder, opts Options) (*VectorStore, error) {
	if !collectionNamePattern.MatchString(opts.Collection) {
		return nil, fmt.Errorf("invalid collection name %q", opts.Collection)
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("invalid vector dimension %d", opts.Dimension)
	}

	s := &VectorStore{
		db:         db,
		collection: opts.Collection,
		dimension:  opts.Dimension,
		location:   opts.Location,
		embedder:   embedder,
		batchSize:  opts.BatchSize,
		createExt:  opts.CreateExtension,
	}
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func embeddingIndex(collection string) string {
	return pq.QuoteIdentifier(collection + "_embedding_idx")
}

// schemaStatements 建表语句；表名经过校验并加引号
func schemaStatements(collection string, dimension int, createExtension bool) []string {
	table := pq.QuoteIdentifier(collection)
	index := embeddingIndex(collection)
	sourceIndex := pq.QuoteIdentifier(collection + "_source_idx")

	var stmts []string
	if createExtension {
		stmts = append(stmts, `CREATE EXTENSION IF NOT EXISTS vector`)
	}
	return append(stmts,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			path TEXT,
			text_content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING hnsw (embedding vector_cosine_ops)`, index, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`, sourceIndex, table),
	)
}

func (s *VectorStore) ensure(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.ensure")
	defer span.End()

	for _, stmt := range schemaStatements(s.collection, s.dimension, s.createExt) {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			span.RecordError(err)
			return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to prepare pgvector collection")
		}
	}
	return nil
}

// Ingest 向量化并按 ID upsert
func (s *VectorStore) Ingest(ctx context.Context, docs []*entity.Document) (err error) {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(docs)))
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "ingest", start, err) }(time.Now())

	if err := retrieval.ValidateDocuments(docs); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	// 同一条 INSERT ... ON CONFLICT 不能两次更新同一行
	docs = lastWriteWins(docs)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	vectors, err := embeddings.EmbedTexts(ctx, s.embedder, texts, s.batchSize)
	if err != nil {
		return err
	}

	now := time.Now()
	rows := make([]*knowledgeRow, len(docs))
	for i, d := range docs {
		rows[i] = &knowledgeRow{
			ID:          d.ID,
			Source:      d.Metadata.Source,
			RowIndex:    d.Metadata.Row,
			Path:        d.Metadata.Path,
			TextContent: d.Text,
			Embedding:   pgv.NewVector(vectors[i]),
			UpdatedAt:   now,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Table(s.collection).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"source", "row_index", "path", "text_content", "embedding", "updated_at"}),
			}).
			CreateInBatches(rows, upsertBatchSize).Error
	})
	if err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to upsert documents")
	}
	return nil
}

// Query 余弦距离升序返回前 k 条
func (s *VectorStore) Query(ctx context.Context, text string, k int) (hits []retrieval.RetrievedHit, err error) {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.Query")
	defer span.End()
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "query", start, err) }(time.Now())

	if k <= 0 {
		k = retrieval.DefaultTopK
	}
	span.SetAttributes(attribute.Int("top_k", k))

	vector, err := embeddings.EmbedQuery(ctx, s.embedder, text)
	if err != nil {
		return nil, err
	}

	qv := pgv.NewVector(vector)
	var rows []hitRow
	if err := s.db.WithContext(ctx).Raw(queryStatement(s.collection), qv, qv, k).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to query documents")
	}
	sortHits(rows)

	hits = make([]retrieval.RetrievedHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, retrieval.RetrievedHit{
			ID:      r.ID,
			Content: r.TextContent,
			Source:  r.Source,
			Row:     r.RowIndex,
			Score:   retrieval.ScoreFromDistance(r.Distance),
		})
	}
	span.SetAttributes(attribute.Int("result_count", len(hits)))
	return hits, nil
}

// queryStatement 按距离表达式排序才能走 HNSW 索引；同距离的顺序在 sortHits 中确定
func queryStatement(collection string) string {
	return fmt.Sprintf(`SELECT id, source, row_index, text_content, embedding <=> ? AS distance
		FROM %s ORDER BY embedding <=> ? LIMIT ?`, pq.QuoteIdentifier(collection))
}

// sortHits 距离相同时按 ID 排序
func sortHits(rows []hitRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := rows[i].Distance, rows[j].Distance
		if di != nil && dj != nil && *di != *dj {
			return *di < *dj
		}
		if (di == nil) != (dj == nil) {
			return di != nil
		}
		return rows[i].ID < rows[j].ID
	})
}

// lastWriteWins 同 ID 只保留最后一条，位置取首次出现处
func lastWriteWins(docs []*entity.Document) []*entity.Document {
	pos := make(map[string]int, len(docs))
	out := make([]*entity.Document, 0, len(docs))
	for _, d := range docs {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// Stats 返回集合统计
func (s *VectorStore) Stats(ctx context.Context) (*retrieval.CollectionStats, error) {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.Stats")
	defer span.End()

	var count int64
	if err := s.db.WithContext(ctx).Table(s.collection).Count(&count).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to count documents")
	}
	return &retrieval.CollectionStats{
		DocumentCount:   count,
		CollectionName:  s.collection,
		StorageLocation: s.location,
		Backend:         backendName,
	}, nil
}

// Clear 删除表并以同名重建
func (s *VectorStore) Clear(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.Clear")
	defer span.End()
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "clear", start, err) }(time.Now())

	stmt := fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pq.QuoteIdentifier(s.collection))
	if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to drop collection")
	}
	return s.ensure(ctx)
}

// Reindex 重建 HNSW 索引
func (s *VectorStore) Reindex(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "pgvector.VectorStore.Reindex")
	defer span.End()
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "reindex", start, err) }(time.Now())

	if err := s.db.WithContext(ctx).Exec("REINDEX INDEX " + embeddingIndex(s.collection)).Error; err != nil {
		span.RecordError(err)
		return apperrors.Wrap(err, apperrors.CodeVectorDBError, "failed to rebuild index")
	}
	return nil
}
