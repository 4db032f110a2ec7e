package retrieval

import (
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

var (
	// ErrEmptyQuery 查询文本为空
	ErrEmptyQuery = apperrors.ErrInvalidParam.WithDetail("query is required")

	// ErrVectorDisabled 表示向量存储未配置
	ErrVectorDisabled = apperrors.ErrServiceUnavailable.WithDetail("vector store is not configured")
)

// newRetrievalError 包装向量查询失败，整次检索失败
func newRetrievalError(err error) error {
	return apperrors.Wrap(err, apperrors.CodeRetrievalFailed, "vector query failed")
}
