package dto

import (
	"time"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// MediaMappingRequest 单条媒体映射
type MediaMappingRequest struct {
	ExcelRowID     string   `json:"excel_row_id"`
	MediaType      string   `json:"media_type"`
	MediaURL       string   `json:"media_url"`
	Description    string   `json:"description"`
	TimestampStart *float64 `json:"timestamp_start"`
	TimestampEnd   *float64 `json:"timestamp_end"`
}

// BulkMediaRequest 批量导入请求
type BulkMediaRequest struct {
	Mappings []MediaMappingRequest `json:"mappings" binding:"required,min=1,max=5000,dive"`
}

// ToInputs 转换为领域输入；字段校验由仓储统一完成
func (r *BulkMediaRequest) ToInputs() []entity.MediaRecordInput {
	out := make([]entity.MediaRecordInput, len(r.Mappings))
	for i, m := range r.Mappings {
		out[i] = entity.MediaRecordInput{
			ExcelRowID:     m.ExcelRowID,
			MediaType:      entity.MediaType(m.MediaType),
			MediaURL:       m.MediaURL,
			Description:    m.Description,
			TimestampStart: m.TimestampStart,
			TimestampEnd:   m.TimestampEnd,
		}
	}
	return out
}

// BulkMediaResponse 批量导入结果
type BulkMediaResponse struct {
	Inserted int `json:"inserted"`
}

// MediaRecordResponse 媒体映射记录
type MediaRecordResponse struct {
	ID             uint      `json:"id"`
	ExcelRowID     string    `json:"excel_row_id"`
	MediaType      string    `json:"media_type"`
	MediaURL       string    `json:"media_url"`
	TimestampStart *float64  `json:"timestamp_start"`
	TimestampEnd   *float64  `json:"timestamp_end"`
	Description    string    `json:"description"`
	CreatedAt      time.Time `json:"created_at"`
}

// ToMediaRecordResponses 转换媒体记录列表
func ToMediaRecordResponses(records []*entity.MediaRecord) []*MediaRecordResponse {
	out := make([]*MediaRecordResponse, 0, len(records))
	for _, r := range records {
		out = append(out, &MediaRecordResponse{
			ID:             r.ID,
			ExcelRowID:     r.ExcelRowID,
			MediaType:      string(r.MediaType),
			MediaURL:       r.MediaURL,
			TimestampStart: r.TimestampStart,
			TimestampEnd:   r.TimestampEnd,
			Description:    r.Description,
			CreatedAt:      r.CreatedAt,
		})
	}
	return out
}
