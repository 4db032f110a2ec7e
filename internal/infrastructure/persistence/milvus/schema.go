package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 知识库集合字段
const (
	FieldID          = "id"
	FieldVector      = "vector"
	FieldSource      = "source"
	FieldRowIndex    = "row_index"
	FieldPath        = "path"
	FieldTextContent = "text_content"
)

// KnowledgeBaseSchema 知识库集合 Schema；id 为 "{source}_row_{row}"
func KnowledgeBaseSchema(collection string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: collection,
		Description:    "CAD knowledge base rows for semantic search",
		Fields: []*entity.Field{
			{
				Name:       FieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     FieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     FieldSource,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "512",
				},
			},
			{
				Name:     FieldRowIndex,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     FieldPath,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "1024",
				},
			},
			{
				Name:     FieldTextContent,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
		},
	}
}

// KnowledgeRow 集合中的一行
type KnowledgeRow struct {
	ID          string
	Vector      []float32
	Source      string
	RowIndex    int64
	Path        string
	TextContent string
}
