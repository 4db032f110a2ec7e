package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

const mediaColumns = `id, excel_row_id, media_type, media_url, timestamp_start, timestamp_end, description, created_at`

// MediaRepository 媒体映射仓储
type MediaRepository struct {
	db *DB
}

var _ repository.MediaRepository = (*MediaRepository)(nil)

// NewMediaRepository 创建媒体映射仓储
func NewMediaRepository(db *DB) *MediaRepository {
	return &MediaRepository{db: db}
}

// BulkInsert 在单个事务中写入全部映射
func (r *MediaRepository) BulkInsert(ctx context.Context, inputs []entity.MediaRecordInput) (int, error) {
	if idx, err := entity.ValidateMediaInputs(inputs); err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeValidationFailed, "invalid media mapping").
			WithDetail(fmt.Sprintf("mapping %d: %v", idx, err))
	}
	if len(inputs) == 0 {
		return 0, nil
	}

	now := formatTime(time.Now())
	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO media_metadata (excel_row_id, media_type, media_url, timestamp_start, timestamp_end, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i := range inputs {
			in := &inputs[i]
			if _, err := stmt.ExecContext(ctx, in.ExcelRowID, string(in.MediaType), in.MediaURL,
				nullFloat(in.TimestampStart), nullFloat(in.TimestampEnd), in.Description, now); err != nil {
				return fmt.Errorf("failed to insert media mapping %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to bulk insert media mappings")
	}
	return len(inputs), nil
}

// FindByIdentifierFragments 以一条 SQL 返回 excel_row_id 包含任一片段的记录。
// instr 区分大小写，不受 LIKE 通配符影响。
func (r *MediaRepository) FindByIdentifierFragments(ctx context.Context, fragments []string) ([]*entity.MediaRecord, error) {
	fragments = uniqueFragments(fragments)
	if len(fragments) == 0 {
		return nil, nil
	}

	conds := make([]string, len(fragments))
	args := make([]interface{}, len(fragments))
	for i, f := range fragments {
		conds[i] = "instr(excel_row_id, ?) > 0"
		args[i] = f
	}
	query := `SELECT ` + mediaColumns + ` FROM media_metadata WHERE ` + strings.Join(conds, " OR ") + ` ORDER BY id`

	rows, err := r.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to query media by fragments")
	}
	defer rows.Close()
	return scanMediaRows(rows)
}

// FindByIdentifier 精确匹配 excel_row_id
func (r *MediaRepository) FindByIdentifier(ctx context.Context, excelRowID string) ([]*entity.MediaRecord, error) {
	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media_metadata WHERE excel_row_id = ? ORDER BY id`, excelRowID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to query media")
	}
	defer rows.Close()
	return scanMediaRows(rows)
}

// List 分页列出
func (r *MediaRepository) List(ctx context.Context, pagination repository.Pagination) (*repository.PagedResult[*entity.MediaRecord], error) {
	var total int64
	if err := r.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM media_metadata`).Scan(&total); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to count media")
	}

	rows, err := r.db.db.QueryContext(ctx,
		`SELECT `+mediaColumns+` FROM media_metadata ORDER BY id LIMIT ? OFFSET ?`,
		pagination.Limit(), pagination.Offset())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list media")
	}
	defer rows.Close()

	items, err := scanMediaRows(rows)
	if err != nil {
		return nil, err
	}
	return repository.NewPagedResult(items, total, pagination), nil
}

func scanMediaRows(rows *sql.Rows) ([]*entity.MediaRecord, error) {
	var out []*entity.MediaRecord
	for rows.Next() {
		var (
			rec        entity.MediaRecord
			mediaType  string
			start, end sql.NullFloat64
			createdAt  string
		)
		if err := rows.Scan(&rec.ID, &rec.ExcelRowID, &mediaType, &rec.MediaURL, &start, &end, &rec.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan media row: %w", err)
		}
		rec.MediaType = entity.MediaType(mediaType)
		if start.Valid {
			v := start.Float64
			rec.TimestampStart = &v
		}
		if end.Valid {
			v := end.Float64
			rec.TimestampEnd = &v
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at for media %d: %w", rec.ID, err)
		}
		rec.CreatedAt = t
		out = append(out, &rec)
	}
	return out, rows.Err()
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

func nullFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
