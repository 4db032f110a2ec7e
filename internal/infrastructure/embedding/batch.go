package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

// maxConcurrentBatches 同时在途的批次数
const maxConcurrentBatches = 4

// EmbedTexts 分批向量化并转换为 float32，结果顺序与输入一致
func EmbedTexts(ctx context.Context, e embedding.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = len(texts)
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		batch := texts[start:end]
		g.Go(func() error {
			vectors, err := embedBatch(gctx, e, batch)
			if err != nil {
				return err
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
			}
			for i, vec := range vectors {
				out[start+i] = ToFloat32(vec)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeEmbeddingFailed, "failed to embed texts")
	}
	return out, nil
}

// embedBatch 调用 Embedder 并触发 Eino callbacks；组件自身会触发时不重复
func embedBatch(ctx context.Context, e embedding.Embedder, texts []string) ([][]float64, error) {
	ctx = callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      "embed_texts",
		Type:      typeOf(e),
		Component: components.ComponentOfEmbedding,
	})
	if components.IsCallbacksEnabled(e) {
		return e.EmbedStrings(ctx, texts)
	}

	ctx = callbacks.OnStart(ctx, &embedding.CallbackInput{Texts: texts})
	vectors, err := e.EmbedStrings(ctx, texts)
	if err != nil {
		callbacks.OnError(ctx, err)
		return nil, err
	}
	callbacks.OnEnd(ctx, &embedding.CallbackOutput{Embeddings: vectors})
	return vectors, nil
}

func typeOf(e embedding.Embedder) string {
	if t, ok := components.GetType(e); ok {
		return t
	}
	return fmt.Sprintf("%T", e)
}

// EmbedQuery 向量化单条查询
func EmbedQuery(ctx context.Context, e embedding.Embedder, text string) ([]float32, error) {
	vectors, err := EmbedTexts(ctx, e, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// ToFloat32 转换向量精度
func ToFloat32(vec []float64) []float32 {
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}
