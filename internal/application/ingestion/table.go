// Package ingestion 将表格内容规范化为文档并写入向量集合
package ingestion

import (
	"context"
	"strings"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// Table 一份表格来源：首行为列名，其余每行一条记录。
// 空字符串表示空单元格。
type Table struct {
	Name    string
	Path    string
	Columns []string
	Rows    [][]string
}

// TableReader 读取表格文件
type TableReader interface {
	Read(ctx context.Context, path string) (*Table, error)
}

// cell 返回第 i 行 col 列的值，越界视为空
func (t *Table) cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

// columnIndex 返回列名到下标的映射，重名列取第一次出现
func (t *Table) columnIndex() map[string]int {
	idx := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, ok := idx[c]; !ok {
			idx[c] = i
		}
	}
	return idx
}

// Documents 把每一行转换为文档。
// 指定 columns 时按给定顺序取值（表中不存在的列跳过）；
// 否则取该行所有非空单元格，按列顺序拼接。
func (t *Table) Documents(columns []string) []*entity.Document {
	docs := make([]*entity.Document, 0, len(t.Rows))
	index := t.columnIndex()

	for i, row := range t.Rows {
		var parts []string
		if len(columns) > 0 {
			for _, col := range columns {
				pos, ok := index[col]
				if !ok {
					continue
				}
				parts = append(parts, t.cell(row, pos))
			}
		} else {
			width := len(row)
			if len(t.Columns) > width {
				width = len(t.Columns)
			}
			for pos := 0; pos < width; pos++ {
				if v := t.cell(row, pos); strings.TrimSpace(v) != "" {
					parts = append(parts, v)
				}
			}
		}
		docs = append(docs, entity.NewDocument(t.Name, t.Path, i, parts))
	}
	return docs
}
