package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/cloudwego/eino/components/embedding"
)

// HashEmbedder 基于特征哈希的本地 Embedder，无需外部服务。
// 词与字符三元组经 xxhash 投影到固定维度并做 L2 归一化，同一文本总是得到同一向量。
type HashEmbedder struct {
	dim int
}

var _ embedding.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder 创建本地哈希 Embedder
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &HashEmbedder{dim: dim}
}

// GetType 组件类型，用于 callbacks 与指标
func (h *HashEmbedder) GetType() string {
	return "Hash"
}

// Dimension 向量维度
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// EmbedStrings 实现 embedding.Embedder
func (h *HashEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float64 {
	vec := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		h.add(vec, "w:"+tok, 1.0)
		runes := []rune("#" + tok + "#")
		for i := 0; i+3 <= len(runes); i++ {
			h.add(vec, "g:"+string(runes[i:i+3]), 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// add 高位决定符号，降低哈希碰撞带来的偏置
func (h *HashEmbedder) add(vec []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize 小写后按非字母数字切分
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
