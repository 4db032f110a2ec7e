// Package tabular 读取知识库使用的表格文件（xlsx / csv）
package tabular

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// Reader 按扩展名分派到具体的读取器
type Reader struct {
	xlsx *XLSXReader
	csv  *CSVReader
}

var _ ingestion.TableReader = (*Reader)(nil)

// NewReader 创建表格读取器
func NewReader() *Reader {
	return &Reader{xlsx: NewXLSXReader(), csv: NewCSVReader()}
}

// Read 实现 ingestion.TableReader
func (r *Reader) Read(ctx context.Context, path string) (*ingestion.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return r.xlsx.Read(ctx, path)
	case ".csv":
		return r.csv.Read(ctx, path)
	default:
		return nil, apperrors.ErrUnsupportedFileType.WithDetail(fmt.Sprintf("unsupported file type: %s", filepath.Base(path)))
	}
}

// newTable 首行作为列名，其余行补齐或保留原长度
func newTable(path string, records [][]string) *ingestion.Table {
	table := &ingestion.Table{
		Name: filepath.Base(path),
		Path: path,
	}
	if len(records) == 0 {
		return table
	}

	table.Columns = make([]string, len(records[0]))
	for i, c := range records[0] {
		table.Columns[i] = strings.TrimSpace(c)
	}
	for _, row := range records[1:] {
		if isBlankRow(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
