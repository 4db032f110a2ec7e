package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
)

// BindPagination 从查询参数绑定分页，非法值回退到默认值
func BindPagination(c *gin.Context) repository.Pagination {
	return repository.NewPagination(
		parseIntWithDefault(c.Query("page"), 1),
		parseIntWithDefault(c.Query("page_size"), 20),
	)
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
