package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// respondError 输出应用错误；5xx 记录错误日志
func respondError(c *gin.Context, err error, msg string) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= 500 {
		logger.Error(c.Request.Context(), msg, err)
	}
	dto.AppError(c, appErr)
}
