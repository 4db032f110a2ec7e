package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
)

// MediaImporter 媒体映射批量写入
type MediaImporter interface {
	BulkInsert(ctx context.Context, inputs []entity.MediaRecordInput) (int, error)
}

// MediaHandler 媒体映射处理器
type MediaHandler struct {
	importer MediaImporter
	repo     repository.MediaRepository
}

// NewMediaHandler 创建媒体映射处理器
func NewMediaHandler(importer MediaImporter, repo repository.MediaRepository) *MediaHandler {
	return &MediaHandler{importer: importer, repo: repo}
}

// BulkCreate 批量导入映射（管理员）；任一条缺少必填字段则整批拒绝
// @Router /v1/media/mappings [post]
func (h *MediaHandler) BulkCreate(c *gin.Context) {
	var req dto.BulkMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	n, err := h.importer.BulkInsert(c.Request.Context(), req.ToInputs())
	if err != nil {
		respondError(c, err, "failed to import media mappings")
		return
	}
	dto.Created(c, &dto.BulkMediaResponse{Inserted: n})
}

// List 分页列出映射；带 excel_row_id 时精确查询
// @Router /v1/media/mappings [get]
func (h *MediaHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	if id := c.Query("excel_row_id"); id != "" {
		records, err := h.repo.FindByIdentifier(ctx, id)
		if err != nil {
			respondError(c, err, "failed to query media mappings")
			return
		}
		dto.Success(c, dto.ToMediaRecordResponses(records))
		return
	}

	page, err := h.repo.List(ctx, dto.BindPagination(c))
	if err != nil {
		respondError(c, err, "failed to list media mappings")
		return
	}
	dto.SuccessWithPage(c, dto.ToMediaRecordResponses(page.Items),
		dto.NewPageMeta(page.Page, page.PageSize, page.Total, page.TotalPages))
}
