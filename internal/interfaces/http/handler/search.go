package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/middleware"
)

// Searcher 知识库检索
type Searcher interface {
	Search(ctx context.Context, query string) (*retrieval.SearchResponse, error)
}

// SearchHandler 检索处理器
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// LegacySearch 兼容旧前端：GET /search?query=，直接返回检索结果体
// @Router /search [get]
func (h *SearchHandler) LegacySearch(c *gin.Context) {
	resp, ok := h.search(c, c.Query("query"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Search 检索知识库并补全媒体
// @Summary 知识库检索
// @Tags Search
// @Accept json
// @Produce json
// @Param body body dto.SearchRequest true "检索请求"
// @Success 200 {object} dto.Response[dto.SearchResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /v1/search [post]
func (h *SearchHandler) Search(c *gin.Context) {
	var req dto.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	resp, ok := h.search(c, req.Query)
	if !ok {
		return
	}
	dto.Success(c, resp)
}

func (h *SearchHandler) search(c *gin.Context, query string) (*dto.SearchResponse, bool) {
	resp, err := h.searcher.Search(c.Request.Context(), query)
	if err != nil {
		respondError(c, err, "search failed")
		return nil, false
	}
	if resp.Degraded {
		c.Header(middleware.EnrichmentDegradedHeader, "true")
	}
	return dto.ToSearchResponse(resp), true
}
