package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

// 媒体映射表的列名
const (
	ColumnExcelRowID     = "excel_row_id"
	ColumnMediaType      = "media_type"
	ColumnMediaURL       = "media_url"
	ColumnDescription    = "description"
	ColumnTimestampStart = "timestamp_start"
	ColumnTimestampEnd   = "timestamp_end"
)

// MediaImporter 导入媒体映射
type MediaImporter struct {
	repo   repository.MediaRepository
	reader TableReader
}

// NewMediaImporter 创建媒体导入器
func NewMediaImporter(repo repository.MediaRepository, reader TableReader) *MediaImporter {
	return &MediaImporter{repo: repo, reader: reader}
}

// RowError 某一行的导入错误
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// ImportReport 媒体导入汇总
type ImportReport struct {
	Inserted int
	Skipped  []RowError
}

// BulkInsert 直接写入一批映射；任一条缺少必填字段返回 ValidationError
func (m *MediaImporter) BulkInsert(ctx context.Context, inputs []entity.MediaRecordInput) (int, error) {
	if idx, err := entity.ValidateMediaInputs(inputs); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid media mapping").
			WithDetail(fmt.Sprintf("mapping %d: %v", idx, err))
	}
	n, err := m.repo.BulkInsert(ctx, inputs)
	if err != nil {
		return 0, err
	}
	metrics.IngestedMedia.Add(float64(n))
	return n, nil
}

// ImportFile 读取 CSV 映射表；无法解析的行跳过并记录，其余行一次性写入
func (m *MediaImporter) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	table, err := m.reader.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	inputs, skipped := ParseMediaTable(table)
	for _, rowErr := range skipped {
		logger.Warn(ctx, "skipping media mapping row", "path", path, "row", rowErr.Row, "error", rowErr.Err.Error())
	}

	report := &ImportReport{Skipped: skipped}
	if len(inputs) == 0 {
		return report, nil
	}

	n, err := m.BulkInsert(ctx, inputs)
	if err != nil {
		return report, err
	}
	report.Inserted = n
	logger.Info(ctx, "imported media mappings", "path", path, "inserted", n, "skipped", len(skipped))
	return report, nil
}

// ParseMediaTable 把映射表的每行转换为输入；timestamp 为空时保持 nil
func ParseMediaTable(table *Table) ([]entity.MediaRecordInput, []RowError) {
	index := make(map[string]int, len(table.Columns))
	for i, c := range table.Columns {
		index[strings.TrimSpace(strings.ToLower(c))] = i
	}
	get := func(row []string, col string) string {
		pos, ok := index[col]
		if !ok {
			return ""
		}
		return strings.TrimSpace(table.cell(row, pos))
	}

	var (
		inputs  []entity.MediaRecordInput
		skipped []RowError
	)
	for i, row := range table.Rows {
		in := entity.MediaRecordInput{
			ExcelRowID:  get(row, ColumnExcelRowID),
			MediaType:   entity.MediaType(get(row, ColumnMediaType)),
			MediaURL:    get(row, ColumnMediaURL),
			Description: get(row, ColumnDescription),
		}

		start, err := entity.ParseTimestamp(get(row, ColumnTimestampStart))
		if err != nil {
			skipped = append(skipped, RowError{Row: i, Err: err})
			continue
		}
		end, err := entity.ParseTimestamp(get(row, ColumnTimestampEnd))
		if err != nil {
			skipped = append(skipped, RowError{Row: i, Err: err})
			continue
		}
		in.TimestampStart, in.TimestampEnd = start, end

		if err := in.Validate(); err != nil {
			skipped = append(skipped, RowError{Row: i, Err: err})
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, skipped
}
