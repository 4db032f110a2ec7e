package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// KnowledgeBase 向量集合管理
type KnowledgeBase interface {
	Stats(ctx context.Context) (*retrieval.CollectionStats, error)
	Clear(ctx context.Context) error
}

// Ingester 服务端目录入库
type Ingester interface {
	IngestPath(ctx context.Context, path, pattern string, columns []string) (*ingestion.DirectoryReport, error)
}

// IngestDefaults 未在请求中指定时使用的入库参数
type IngestDefaults struct {
	Dir     string
	Pattern string
	Columns []string
}

// KnowledgeBaseHandler 知识库管理处理器
type KnowledgeBaseHandler struct {
	kb       KnowledgeBase
	ingester Ingester
	defaults IngestDefaults
}

// NewKnowledgeBaseHandler 创建知识库管理处理器
func NewKnowledgeBaseHandler(kb KnowledgeBase, ingester Ingester, defaults IngestDefaults) *KnowledgeBaseHandler {
	return &KnowledgeBaseHandler{kb: kb, ingester: ingester, defaults: defaults}
}

// Stats 集合统计
// @Router /v1/kb/stats [get]
func (h *KnowledgeBaseHandler) Stats(c *gin.Context) {
	stats, err := h.kb.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to get knowledge base stats")
		return
	}
	dto.Success(c, stats)
}

// Clear 清空并重建集合（管理员）
// @Router /v1/kb [delete]
func (h *KnowledgeBaseHandler) Clear(c *gin.Context) {
	if err := h.kb.Clear(c.Request.Context()); err != nil {
		respondError(c, err, "failed to clear knowledge base")
		return
	}
	logger.Warn(c.Request.Context(), "knowledge base cleared via api")
	dto.Success(c, &dto.MessageResponse{Message: "knowledge base cleared"})
}

// Ingest 从服务端目录入库（管理员）；单个文件失败不影响其他文件
// @Router /v1/kb/ingest [post]
func (h *KnowledgeBaseHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			dto.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Path == "" {
		req.Path = h.defaults.Dir
	}
	if req.Pattern == "" {
		req.Pattern = h.defaults.Pattern
	}
	if len(req.Columns) == 0 {
		req.Columns = h.defaults.Columns
	}

	report, err := h.ingester.IngestPath(c.Request.Context(), req.Path, req.Pattern, req.Columns)
	if err != nil {
		respondError(c, err, "ingestion failed")
		return
	}
	dto.Success(c, dto.ToIngestResponse(report))
}
