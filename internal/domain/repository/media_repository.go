// Package repository 定义数据访问层接口
package repository

import (
	"context"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// MediaRepository 媒体关联仓储接口
type MediaRepository interface {
	// BulkInsert 校验并批量写入，任一条缺少必填字段则整批拒绝
	BulkInsert(ctx context.Context, inputs []entity.MediaRecordInput) (int, error)

	// FindByIdentifierFragments 单次查询返回 excel_row_id 包含任一片段（区分大小写）的记录
	FindByIdentifierFragments(ctx context.Context, fragments []string) ([]*entity.MediaRecord, error)

	// FindByIdentifier 精确匹配 excel_row_id
	FindByIdentifier(ctx context.Context, excelRowID string) ([]*entity.MediaRecord, error)

	// List 分页列出媒体记录
	List(ctx context.Context, pagination Pagination) (*PagedResult[*entity.MediaRecord], error)
}
