package tabular

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// XLSXReader 读取工作簿的第一个工作表
type XLSXReader struct{}

// NewXLSXReader 创建 xlsx 读取器
func NewXLSXReader() *XLSXReader {
	return &XLSXReader{}
}

// Read 实现 ingestion.TableReader
func (r *XLSXReader) Read(ctx context.Context, path string) (*ingestion.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "file not found")
		}
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return newTable(path, nil), nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q of %s: %w", sheets[0], path, err)
	}
	return newTable(path, rows), nil
}
