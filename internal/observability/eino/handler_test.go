package eino

import (
	"context"
	"errors"
	"testing"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

func runInfo(typ string) *einocb.RunInfo {
	return &einocb.RunInfo{Name: "embed_texts", Type: typ, Component: components.ComponentOfEmbedding}
}

func TestEmbeddingHandler_RecordsSuccess(t *testing.T) {
	before := testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("TestOK", "success"))
	textsBefore := testutil.ToFloat64(metrics.EmbeddingTexts.WithLabelValues("TestOK"))

	ctx := einocb.InitCallbacks(context.Background(), runInfo("TestOK"), Handler())
	ctx = einocb.OnStart(ctx, &embedding.CallbackInput{Texts: []string{"a", "b", "c"}})
	einocb.OnEnd(ctx, &embedding.CallbackOutput{
		Embeddings: [][]float64{{1}, {2}, {3}},
		TokenUsage: &embedding.TokenUsage{PromptTokens: 9},
	})

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("TestOK", "success")))
	assert.Equal(t, textsBefore+3, testutil.ToFloat64(metrics.EmbeddingTexts.WithLabelValues("TestOK")))
}

func TestEmbeddingHandler_RecordsError(t *testing.T) {
	before := testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("TestFail", "error"))

	ctx := einocb.InitCallbacks(context.Background(), runInfo("TestFail"), Handler())
	ctx = einocb.OnStart(ctx, &embedding.CallbackInput{Texts: []string{"a"}})
	einocb.OnError(ctx, errors.New("provider down"))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EmbeddingCallTotal.WithLabelValues("TestFail", "error")))
}

func TestProviderOf(t *testing.T) {
	assert.Equal(t, "unknown", providerOf(nil))
	assert.Equal(t, "Hash", providerOf(runInfo("Hash")))
}
