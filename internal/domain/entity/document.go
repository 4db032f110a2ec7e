// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
)

// DocumentTextSeparator 行内各列文本的连接符
const DocumentTextSeparator = " | "

// DocumentMetadata 文档元数据
type DocumentMetadata struct {
	Source string `json:"source"`
	Row    int    `json:"row"`
	Path   string `json:"path"`
}

// Document 向量库中的最小检索单元，对应表格中的一行
type Document struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Metadata DocumentMetadata `json:"metadata"`
}

// DocumentID 生成 "{source}_row_{row}" 形式的文档 ID
func DocumentID(source string, row int) string {
	return fmt.Sprintf("%s_row_%d", source, row)
}

// NewDocument 由一行文本片段构造文档
func NewDocument(source, path string, row int, parts []string) *Document {
	return &Document{
		ID:   DocumentID(source, row),
		Text: strings.Join(parts, DocumentTextSeparator),
		Metadata: DocumentMetadata{
			Source: source,
			Row:    row,
			Path:   path,
		},
	}
}

// Validate 校验文档必填字段
func (d *Document) Validate() error {
	if d == nil {
		return fmt.Errorf("document is nil")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("document id is required")
	}
	return nil
}
