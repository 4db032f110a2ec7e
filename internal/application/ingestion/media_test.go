package ingestion

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	"github.com/imrysn/kmti-icad-hub/internal/domain/repository"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

type stubMediaRepo struct {
	inserted [][]entity.MediaRecordInput
	err      error
}

func (r *stubMediaRepo) BulkInsert(_ context.Context, inputs []entity.MediaRecordInput) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.inserted = append(r.inserted, inputs)
	return len(inputs), nil
}

func (r *stubMediaRepo) FindByIdentifierFragments(context.Context, []string) ([]*entity.MediaRecord, error) {
	return nil, nil
}

func (r *stubMediaRepo) FindByIdentifier(context.Context, string) ([]*entity.MediaRecord, error) {
	return nil, nil
}

func (r *stubMediaRepo) List(context.Context, repository.Pagination) (*repository.PagedResult[*entity.MediaRecord], error) {
	return nil, nil
}

func mappingTable() *Table {
	return &Table{
		Name:    "media_mappings.csv",
		Columns: []string{"excel_row_id", "media_type", "media_url", "timestamp_start", "timestamp_end", "description"},
		Rows: [][]string{
			{"orthographic_view_intro", "video", "/media/ortho.mp4", "12.5", "", "Front view walkthrough"},
			{"isometric_view_basics", "image", "/media/iso.png", "", "", "Iso axes"},
			{"tolerance_specs", "video", "/media/tol.mp4", "abc", "", "Bad timestamp"},
			{"", "image", "/media/none.png", "", "", "Missing id"},
			{"surface_creation", "hologram", "/media/surf.bin", "", "", "Unknown type passes"},
			{"section_views", "video", "/media/sec.mp4", "NaN", "", "Non-finite start"},
			{"section_views", "video", "/media/sec.mp4", "0", "-inf", "Non-finite end"},
		},
	}
}

func TestParseMediaTable(t *testing.T) {
	inputs, skipped := ParseMediaTable(mappingTable())

	require.Len(t, inputs, 3)
	require.Len(t, skipped, 4)
	assert.Equal(t, 2, skipped[0].Row)
	assert.Equal(t, 3, skipped[1].Row)
	assert.Equal(t, 5, skipped[2].Row)
	assert.Equal(t, 6, skipped[3].Row)

	require.NotNil(t, inputs[0].TimestampStart)
	assert.Equal(t, 12.5, *inputs[0].TimestampStart)
	assert.Nil(t, inputs[0].TimestampEnd, "blank timestamps are omitted, not zero")
	assert.Nil(t, inputs[1].TimestampStart)
	assert.Equal(t, entity.MediaType("hologram"), inputs[2].MediaType)
}

func TestImportFile_InsertsValidRowsOnce(t *testing.T) {
	repo := &stubMediaRepo{}
	reader := &mapReader{tables: map[string]*Table{"media_mappings.csv": mappingTable()}}

	report, err := NewMediaImporter(repo, reader).ImportFile(context.Background(), "data/media_mappings.csv")
	require.NoError(t, err)

	assert.Equal(t, 3, report.Inserted)
	assert.Len(t, report.Skipped, 4)
	assert.Len(t, repo.inserted, 1)
}

func TestBulkInsert_RejectsMissingRequiredField(t *testing.T) {
	repo := &stubMediaRepo{}
	importer := NewMediaImporter(repo, nil)

	_, err := importer.BulkInsert(context.Background(), []entity.MediaRecordInput{
		{ExcelRowID: "a", MediaType: "video", MediaURL: "/a.mp4", Description: "a"},
		{ExcelRowID: "b", MediaType: "video", MediaURL: "/b.mp4"},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.Empty(t, repo.inserted)

	var fieldErr *entity.MissingFieldError
	assert.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "description", fieldErr.Field)
}

func TestBulkInsert_RejectsNonFiniteTimestamp(t *testing.T) {
	repo := &stubMediaRepo{}
	nan := math.NaN()

	_, err := NewMediaImporter(repo, nil).BulkInsert(context.Background(), []entity.MediaRecordInput{
		{ExcelRowID: "a", MediaType: "video", MediaURL: "/a.mp4", Description: "a", TimestampStart: &nan},
	})
	assert.ErrorIs(t, err, apperrors.ErrValidationFailed)
	assert.Empty(t, repo.inserted)
}

func TestBulkInsert_PropagatesStoreError(t *testing.T) {
	repo := &stubMediaRepo{err: errors.New("db down")}

	_, err := NewMediaImporter(repo, nil).BulkInsert(context.Background(), []entity.MediaRecordInput{
		{ExcelRowID: "a", MediaType: "video", MediaURL: "/a.mp4", Description: "a"},
	})
	assert.EqualError(t, err, "db down")
}
