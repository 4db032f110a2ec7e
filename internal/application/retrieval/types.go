package retrieval

import "github.com/imrysn/kmti-icad-hub/internal/domain/entity"

// RetrievedHit 向量检索的一条命中。
// Source 为文档 metadata.source（文件名），不是文档 ID。
type RetrievedHit struct {
	ID      string
	Content string
	Source  string
	Row     int
	Score   *float64
}

// MediaAsset 媒体记录对外的投影
type MediaAsset struct {
	MediaType      entity.MediaType
	MediaURL       string
	TimestampStart *float64
	TimestampEnd   *float64
	Description    string
}

// NewMediaAsset 由媒体记录构造投影
func NewMediaAsset(r *entity.MediaRecord) MediaAsset {
	return MediaAsset{
		MediaType:      r.MediaType,
		MediaURL:       r.MediaURL,
		TimestampStart: r.TimestampStart,
		TimestampEnd:   r.TimestampEnd,
		Description:    r.Description,
	}
}

// EnrichedResult 命中及其关联媒体
type EnrichedResult struct {
	RetrievedHit
	Media []MediaAsset
}

// SearchResponse 检索结果
type SearchResponse struct {
	Query   string
	Results []EnrichedResult

	// Degraded 表示媒体补全失败，结果只含文本
	Degraded bool
}
