// Package entity 定义领域实体
package entity

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// MediaType 媒体类型；未知取值按原样保存
type MediaType string

const (
	MediaTypeVideo   MediaType = "video"
	MediaTypeImage   MediaType = "image"
	MediaType3DModel MediaType = "3d_model"
)

// MediaRecord 媒体关联记录
// ExcelRowID 与入库文档没有外键约束，只做子串匹配。
type MediaRecord struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ExcelRowID     string    `json:"excel_row_id" gorm:"column:excel_row_id;type:varchar(200);index;not null"`
	MediaType      MediaType `json:"media_type" gorm:"type:varchar(50);not null"`
	MediaURL       string    `json:"media_url" gorm:"column:media_url;type:varchar(500);not null"`
	TimestampStart *float64  `json:"timestamp_start,omitempty"`
	TimestampEnd   *float64  `json:"timestamp_end,omitempty"`
	Description    string    `json:"description" gorm:"type:varchar(500)"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (MediaRecord) TableName() string {
	return "media_metadata"
}

// MediaRecordInput 批量导入的一条媒体映射
type MediaRecordInput struct {
	ExcelRowID     string    `json:"excel_row_id"`
	MediaType      MediaType `json:"media_type"`
	MediaURL       string    `json:"media_url"`
	Description    string    `json:"description"`
	TimestampStart *float64  `json:"timestamp_start,omitempty"`
	TimestampEnd   *float64  `json:"timestamp_end,omitempty"`
}

// MissingFieldError 必填字段缺失
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Validate 校验必填字段
func (in *MediaRecordInput) Validate() error {
	switch {
	case strings.TrimSpace(in.ExcelRowID) == "":
		return &MissingFieldError{Field: "excel_row_id"}
	case strings.TrimSpace(string(in.MediaType)) == "":
		return &MissingFieldError{Field: "media_type"}
	case strings.TrimSpace(in.MediaURL) == "":
		return &MissingFieldError{Field: "media_url"}
	case strings.TrimSpace(in.Description) == "":
		return &MissingFieldError{Field: "description"}
	case !finite(in.TimestampStart):
		return fmt.Errorf("timestamp_start must be a finite number")
	case !finite(in.TimestampEnd):
		return fmt.Errorf("timestamp_end must be a finite number")
	}
	return nil
}

func finite(v *float64) bool {
	return v == nil || !(math.IsNaN(*v) || math.IsInf(*v, 0))
}

// ToRecord 转换为待写入的记录
func (in *MediaRecordInput) ToRecord() *MediaRecord {
	return &MediaRecord{
		ExcelRowID:     in.ExcelRowID,
		MediaType:      in.MediaType,
		MediaURL:       in.MediaURL,
		TimestampStart: in.TimestampStart,
		TimestampEnd:   in.TimestampEnd,
		Description:    in.Description,
	}
}

// ValidateMediaInputs 校验整批输入，返回第一条错误及其下标
func ValidateMediaInputs(inputs []MediaRecordInput) (int, error) {
	for i := range inputs {
		if err := inputs[i].Validate(); err != nil {
			return i, err
		}
	}
	return -1, nil
}

// ParseTimestamp 解析可选的秒数；空白返回 nil 而不是 0
func ParseTimestamp(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	if !finite(&v) {
		return nil, fmt.Errorf("invalid timestamp %q: not a finite number", raw)
	}
	return &v, nil
}
