package sqlite

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	embeddings "github.com/imrysn/kmti-icad-hub/internal/infrastructure/embedding"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
	"github.com/imrysn/kmti-icad-hub/pkg/tracer"
)

const backendName = "sqlite"

var collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// VectorStore 以 SQLite 表保存向量并做暴力余弦检索，适合单机与中小规模知识库
type VectorStore struct {
	db        *DB
	table     string
	embedder  embedding.Embedder
	batchSize int
}

var _ retrieval.VectorStore = (*VectorStore)(nil)

// NewVectorStore 创建向量集合（表不存在时建表）
func NewVectorStore(ctx context.Context, db *DB, collection string, embedder embedding.Embedder, batchSize int) (*VectorStore, error) {
	if !collectionNamePattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid collection name %q", collection)
	}
	s := &VectorStore{db: db, table: collection, embedder: embedder, batchSize: batchSize}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *VectorStore) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id           TEXT PRIMARY KEY,
		source       TEXT NOT NULL,
		row_index    INTEGER NOT NULL,
		path         TEXT NOT NULL DEFAULT '',
		text_content TEXT NOT NULL,
		embedding    BLOB NOT NULL,
		updated_at   TEXT NOT NULL
	)`, s.table)
	if _, err := s.db.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", s.table, err)
	}
	return nil
}

// Ingest 向量化并按 ID upsert
func (s *VectorStore) Ingest(ctx context.Context, docs []*entity.Document) (err error) {
	ctx, span := tracer.Start(ctx, "sqlite.VectorStore.Ingest")
	defer span.End()
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
		tracer.RecordError(span, err)
		return err
	}

	now := formatTime(time.Now())
	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, source, row_index, path, text_content, embedding, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				source = excluded.source,
				row_index = excluded.row_index,
				path = excluded.path,
				text_content = excluded.text_content,
				embedding = excluded.embedding,
				updated_at = excluded.updated_at`, s.table))
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for i, d := range docs {
			if _, err := stmt.ExecContext(ctx, d.ID, d.Metadata.Source, d.Metadata.Row, d.Metadata.Path,
				d.Text, encodeFloat32s(vectors[i]), now); err != nil {
				return fmt.Errorf("failed to upsert document %s: %w", d.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		tracer.RecordError(span, err)
	}
	return err
}

type idScore struct {
	id    string
	score float64
}

// Query 扫描全部向量取余弦相似度最高的 k 条，再回表取正文
func (s *VectorStore) Query(ctx context.Context, text string, k int) (hits []retrieval.RetrievedHit, err error) {
	ctx, span := tracer.Start(ctx, "sqlite.VectorStore.Query")
	defer span.End()
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "query", start, err) }(time.Now())

	if k <= 0 {
		k = retrieval.DefaultTopK
	}

	query, err := embeddings.EmbedQuery(ctx, s.embedder, text)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	queryNorm := norm(query)

	rows, err := s.db.db.QueryContext(ctx, fmt.Sprintf(`SELECT id, embedding FROM %s`, s.table))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to scan vectors: %w", err)
	}

	h := &idScoreHeap{}
	var buf []float32
	for rows.Next() {
		var (
			id   string
			blob []byte
		)
		if err := rows.Scan(&id, &blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan vector row: %w", err)
		}
		if buf, err = decodeFloat32sInto(buf, blob); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", id, err)
		}

		score := cosine(query, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, idScore{id: id, score: score})
		} else if score > (*h)[0].score {
			(*h)[0] = idScore{id: id, score: score}
			heap.Fix(h, 0)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vectors: %w", err)
	}

	if h.Len() == 0 {
		return []retrieval.RetrievedHit{}, nil
	}

	top := make([]idScore, 0, h.Len())
	args := make([]interface{}, 0, h.Len())
	for h.Len() > 0 {
		item := heap.Pop(h).(idScore)
		top = append(top, item)
		args = append(args, item.id)
	}

	full, err := s.db.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, source, row_index, text_content FROM %s WHERE id IN (?%s)`,
		s.table, strings.Repeat(",?", len(args)-1)), args...)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("failed to fetch top documents: %w", err)
	}
	defer full.Close()

	byID := make(map[string]retrieval.RetrievedHit, len(top))
	for full.Next() {
		var hit retrieval.RetrievedHit
		if err := full.Scan(&hit.ID, &hit.Source, &hit.Row, &hit.Content); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		byID[hit.ID] = hit
	}
	if err := full.Err(); err != nil {
		return nil, err
	}

	hits = make([]retrieval.RetrievedHit, 0, len(top))
	for _, item := range top {
		hit, ok := byID[item.id]
		if !ok {
			continue
		}
		distance := 1 - item.score
		hit.Score = retrieval.ScoreFromDistance(&distance)
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if *hits[i].Score != *hits[j].Score {
			return *hits[i].Score > *hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits, nil
}

// Stats 返回集合统计
func (s *VectorStore) Stats(ctx context.Context) (*retrieval.CollectionStats, error) {
	var count int64
	if err := s.db.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	return &retrieval.CollectionStats{
		DocumentCount:   count,
		CollectionName:  s.table,
		StorageLocation: s.db.Path(),
		Backend:         backendName,
	}, nil
}

// Clear 删除表并以同名重建
func (s *VectorStore) Clear(ctx context.Context) (err error) {
	defer func(start time.Time) { metrics.ObserveVectorOp(backendName, "clear", start, err) }(time.Now())

	if _, err := s.db.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", s.table, err)
	}
	return s.ensureTable(ctx)
}

// encodeFloat32s 小端序列化
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto 复用 buf 解码，扫描时避免逐行分配
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine 维度不一致或任一为零向量时返回 0
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	if bSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bSq))
}

// idScoreHeap 按分数的小顶堆，保留当前 top-k
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
