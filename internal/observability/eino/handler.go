package eino

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/embedding"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

// startTimeKey 在 Context 中保存调用开始时间，OnEnd/OnError 据此计算耗时
type startTimeKey struct{}

// newEmbeddingCallbackHandler 记录每次向量化调用的次数、耗时、文本数与 token 用量，并开启一个 span
func newEmbeddingCallbackHandler() *cbtemplate.EmbeddingCallbackHandler {
	return &cbtemplate.EmbeddingCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *embedding.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			provider := providerOf(info)
			attrs := []attribute.KeyValue{
				attribute.String("embedding.provider", provider),
			}
			if input != nil {
				metrics.EmbeddingTexts.WithLabelValues(provider).Add(float64(len(input.Texts)))
				attrs = append(attrs, attribute.Int("embedding.texts", len(input.Texts)))
				if input.Config != nil && input.Config.Model != "" {
					attrs = append(attrs, attribute.String("embedding.model", input.Config.Model))
				}
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "embedding.embed", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *embedding.CallbackOutput) context.Context {
			provider := providerOf(info)
			metrics.EmbeddingCallTotal.WithLabelValues(provider, "success").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.EmbeddingCallDuration.WithLabelValues(provider).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			if output != nil && output.TokenUsage != nil {
				metrics.EmbeddingTokens.WithLabelValues(provider).Add(float64(output.TokenUsage.PromptTokens))
				span.SetAttributes(attribute.Int("embedding.prompt_tokens", output.TokenUsage.PromptTokens))
			}
			span.End()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			provider := providerOf(info)
			metrics.EmbeddingCallTotal.WithLabelValues(provider, "error").Inc()
			if d := elapsedSeconds(ctx); d > 0 {
				metrics.EmbeddingCallDuration.WithLabelValues(provider).Observe(d)
			}

			span := trace.SpanFromContext(ctx)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return ctx
		},
	}
}

func providerOf(info *einocb.RunInfo) string {
	if info == nil || info.Type == "" {
		return "unknown"
	}
	return info.Type
}

// elapsedSeconds 从 OnStart 记录的时间算起的耗时；取不到时返回 0
func elapsedSeconds(ctx context.Context) float64 {
	start, ok := ctx.Value(startTimeKey{}).(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}
