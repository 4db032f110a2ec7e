package retrieval

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
	"github.com/imrysn/kmti-icad-hub/pkg/tracer"
)

// Service 知识库检索服务：一次向量查询 + 一次批量媒体查询，再按命中合并。
// 无论命中多少条，查询路径最多两次存储往返。
type Service struct {
	store VectorStore
	media MediaLookup
	topK  int
}

// NewService 创建检索服务；media 为 nil 时不做媒体补全
func NewService(store VectorStore, media MediaLookup, topK int) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		store: store,
		media: media,
		topK:  topK,
	}
}

func (s *Service) Search(ctx context.Context, query string) (*SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if s.store == nil {
		return nil, newRetrievalError(ErrVectorDisabled)
	}

	ctx, span := tracer.Start(ctx, "retrieval.Service.Search")
	defer span.End()

	start := time.Now()
	defer func() { metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	// 1) 向量召回，失败即整次失败
	hits, err := s.store.Query(ctx, query, s.topK)
	if err != nil {
		tracer.RecordError(span, err)
		metrics.SearchTotal.WithLabelValues("error").Inc()
		logger.Error(ctx, "vector query failed", err, "query", query)
		return nil, newRetrievalError(err)
	}
	metrics.SearchHits.Observe(float64(len(hits)))

	// 2) 去重来源
	sources := distinctSources(hits)
	span.SetAttributes(
		attribute.Int("retrieval.hits", len(hits)),
		attribute.Int("retrieval.sources", len(sources)),
	)

	// 3) 单次批量媒体查询，失败降级为空媒体
	grouped, degraded := s.lookupMedia(ctx, sources)
	span.SetAttributes(attribute.Bool("retrieval.degraded", degraded))

	// 4) 按原排名合并
	resp := &SearchResponse{
		Query:    query,
		Results:  make([]EnrichedResult, 0, len(hits)),
		Degraded: degraded,
	}
	for _, hit := range hits {
		media := grouped[hit.Source]
		if media == nil {
			media = []MediaAsset{}
		}
		resp.Results = append(resp.Results, EnrichedResult{RetrievedHit: hit, Media: media})
	}

	status := "ok"
	if degraded {
		status = "degraded"
	}
	metrics.SearchTotal.WithLabelValues(status).Inc()
	return resp, nil
}

func (s *Service) lookupMedia(ctx context.Context, sources []string) (map[string][]MediaAsset, bool) {
	if len(sources) == 0 || s.media == nil {
		return nil, false
	}

	candidates, err := s.media.FindByIdentifierFragments(ctx, sources)
	if err != nil {
		metrics.MediaLookupTotal.WithLabelValues("error").Inc()
		logger.Warn(ctx, "media enrichment degraded, returning text-only results",
			"error", err.Error(),
			"sources", len(sources),
		)
		return nil, true
	}
	metrics.MediaLookupTotal.WithLabelValues("ok").Inc()

	return groupBySource(sources, candidates), false
}

// Stats 返回向量集合统计
func (s *Service) Stats(ctx context.Context) (*CollectionStats, error) {
	if s.store == nil {
		return nil, ErrVectorDisabled
	}
	return s.store.Stats(ctx)
}

// Clear 清空向量集合
func (s *Service) Clear(ctx context.Context) error {
	if s.store == nil {
		return ErrVectorDisabled
	}
	logger.Warn(ctx, "clearing knowledge base collection")
	return s.store.Clear(ctx)
}
