package milvus

import (
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeBaseSchema(t *testing.T) {
	schema := KnowledgeBaseSchema("icad_knowledge_base", 384)

	assert.Equal(t, "icad_knowledge_base", schema.CollectionName)
	names := make([]string, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		names = append(names, f.Name)
		if f.Name == FieldVector {
			assert.Equal(t, "384", f.TypeParams["dim"])
		}
		if f.Name == FieldID {
			assert.True(t, f.PrimaryKey)
			assert.False(t, f.AutoID)
		}
	}
	assert.Equal(t, []string{FieldID, FieldVector, FieldSource, FieldRowIndex, FieldPath, FieldTextContent}, names)
}

func TestDistanceFromScore(t *testing.T) {
	assert.InDelta(t, 0.25, distanceFromScore(entity.COSINE, 0.75), 1e-6)
	assert.InDelta(t, 0.25, distanceFromScore(entity.IP, 0.75), 1e-6)
	assert.InDelta(t, 0.75, distanceFromScore(entity.L2, 0.75), 1e-6)
}

func TestCountFromColumns(t *testing.T) {
	n, err := countFromColumns([]entity.Column{entity.NewColumnInt64("count(*)", []int64{42})})
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	_, err = countFromColumns([]entity.Column{entity.NewColumnVarChar("id", []string{"a"})})
	assert.Error(t, err)
}

func TestReadOptions_StrongConsistency(t *testing.T) {
	opts := readOptions()
	require.NotEmpty(t, opts)

	applied := &client.SearchQueryOption{ConsistencyLevel: entity.ClBounded}
	for _, opt := range opts {
		opt(applied)
	}
	assert.Equal(t, entity.ClStrong, applied.ConsistencyLevel)
}
