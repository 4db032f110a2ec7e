package postgres

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

const mediaInsertBatchSize = 200

// MediaRepository 媒体映射仓储实现
type MediaRepository struct {
	client *Client
	tx     *TxManager
}

var _ repository.MediaRepository = (*MediaRepository)(nil)

// NewMediaRepository 创建媒体映射仓储
func NewMediaRepository(client *Client) *MediaRepository {
	return &MediaRepository{client: client, tx: NewTxManager(client)}
}

// BulkInsert 校验后在一个事务内分批写入
func (r *MediaRepository) BulkInsert(ctx context.Context, inputs []entity.MediaRecordInput) (int, error) {
	ctx, span := tracer.Start(ctx, "postgres.MediaRepository.BulkInsert")
	defer span.End()
	span.SetAttributes(attribute.Int("count", len(inputs)))

	if idx, err := entity.ValidateMediaInputs(inputs); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid media mapping").
			WithDetail(fmt.Sprintf("mapping %d: %v", idx, err))
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	records := make([]*entity.MediaRecord, len(inputs))
	for i := range inputs {
		records[i] = inputs[i].ToRecord()
	}

	err := r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		return getDB(ctx, r.client.db).CreateInBatches(records, mediaInsertBatchSize).Error
	})
	if err != nil {
		span.RecordError(err)
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to bulk insert media mappings")
	}
	return len(records), nil
}

// FindByIdentifierFragments 单条 SQL：excel_row_id 包含任一片段（strpos 区分大小写，不解析通配符）
func (r *MediaRepository) FindByIdentifierFragments(ctx context.Context, fragments []string) ([]*entity.MediaRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.MediaRepository.FindByIdentifierFragments")
	defer span.End()

	fragments = uniqueFragments(fragments)
	span.SetAttributes(attribute.Int("fragments", len(fragments)))
	if len(fragments) == 0 {
		return nil, nil
	}

	var records []*entity.MediaRecord
	if err := fragmentQuery(getDB(ctx, r.client.db), fragments).Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to query media by fragments")
	}
	span.SetAttributes(attribute.Int("result_count", len(records)))
	return records, nil
}

// fragmentQuery 所有片段合并成一个 OR 条件
func fragmentQuery(db *gorm.DB, fragments []string) *gorm.DB {
	conds := make([]string, len(fragments))
	args := make([]interface{}, len(fragments))
	for i, f := range fragments {
		conds[i] = "strpos(excel_row_id, ?) > 0"
		args[i] = f
	}
	return db.Where(strings.Join(conds, " OR "), args...).Order("id")
}

// FindByIdentifier 精确匹配 excel_row_id
func (r *MediaRepository) FindByIdentifier(ctx context.Context, excelRowID string) ([]*entity.MediaRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.MediaRepository.FindByIdentifier")
	defer span.End()

	var records []*entity.MediaRecord
	db := getDB(ctx, r.client.db)
	if err := db.Where("excel_row_id = ?", excelRowID).Order("id").Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to query media")
	}
	return records, nil
}

// List 分页列出
func (r *MediaRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.MediaRecord], error) {
	ctx, span := tracer.Start(ctx, "postgres.MediaRepository.List")
	defer span.End()

	db := getDB(ctx, r.client.db).Model(&entity.MediaRecord{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to count media")
	}

	var records []*entity.MediaRecord
	if err := db.Order("id").Offset(pagination.Offset()).Limit(pagination.Limit()).Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list media")
	}
	return repository.NewPagedResult(records, total, pagination), nil
}

// uniqueFragments 去重并去掉空片段，保持原顺序
func uniqueFragments(fragments []string) []string {
	seen := make(map[string]struct{}, len(fragments))
	out := make([]string, 0, len(fragments))
	for _, f := range fragments {
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
