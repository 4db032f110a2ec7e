package dto

import (
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
)

// SearchRequest 检索请求
type SearchRequest struct {
	Query string `json:"query" binding:"required,max=2000"`
}

// MediaAssetDTO 命中关联的媒体
type MediaAssetDTO struct {
	MediaType      string   `json:"media_type"`
	MediaURL       string   `json:"media_url"`
	TimestampStart *float64 `json:"timestamp_start"`
	TimestampEnd   *float64 `json:"timestamp_end"`
	Description    string   `json:"description"`
}

// SearchResultDTO 单条检索结果
type SearchResultDTO struct {
	Content string          `json:"content"`
	Source  string          `json:"source"`
	Score   *float64        `json:"score"`
	Media   []MediaAssetDTO `json:"media"`
}

// SearchResponse 检索响应，字段与前端约定一致
type SearchResponse struct {
	Query    string            `json:"query"`
	Results  []SearchResultDTO `json:"results"`
	Degraded bool              `json:"degraded,omitempty"`
}

// ToSearchResponse 转换检索结果；媒体与结果列表始终为数组
func ToSearchResponse(resp *retrieval.SearchResponse) *SearchResponse {
	out := &SearchResponse{
		Query:    resp.Query,
		Results:  make([]SearchResultDTO, 0, len(resp.Results)),
		Degraded: resp.Degraded,
	}
	for _, r := range resp.Results {
		media := make([]MediaAssetDTO, 0, len(r.Media))
		for _, m := range r.Media {
			media = append(media, MediaAssetDTO{
				MediaType:      string(m.MediaType),
				MediaURL:       m.MediaURL,
				TimestampStart: m.TimestampStart,
				TimestampEnd:   m.TimestampEnd,
				Description:    m.Description,
			})
		}
		out.Results = append(out.Results, SearchResultDTO{
			Content: r.Content,
			Source:  r.Source,
			Score:   r.Score,
			Media:   media,
		})
	}
	return out
}
