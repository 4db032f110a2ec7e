package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// CSVReader 读取带表头的 CSV，允许各行列数不一致
type CSVReader struct{}

// NewCSVReader 创建 csv 读取器
func NewCSVReader() *CSVReader {
	return &CSVReader{}
}

// Read 实现 ingestion.TableReader
func (r *CSVReader) Read(ctx context.Context, path string) (*ingestion.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "file not found")
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", path, err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = trimBOM(records[0][0])
	}
	return newTable(path, records), nil
}

func trimBOM(s string) string {
	const bom = "\ufeff"
	if len(s) >= len(bom) && s[:len(bom)] == bom {
		return s[len(bom):]
	}
	return s
}
