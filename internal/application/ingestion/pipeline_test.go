package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
)

type recordingStore struct {
	batches [][]*entity.Document
	err     error
}

func (s *recordingStore) Ingest(_ context.Context, docs []*entity.Document) error {
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, docs)
	return nil
}

func (s *recordingStore) Query(context.Context, string, int) ([]retrieval.RetrievedHit, error) {
	return nil, nil
}

func (s *recordingStore) Stats(context.Context) (*retrieval.CollectionStats, error) {
	return &retrieval.CollectionStats{}, nil
}

func (s *recordingStore) Clear(context.Context) error { return nil }

type mapReader struct {
	tables map[string]*Table
	errs   map[string]error
	reads  []string
}

func (r *mapReader) Read(_ context.Context, path string) (*Table, error) {
	name := filepath.Base(path)
	r.reads = append(r.reads, name)
	if err, ok := r.errs[name]; ok {
		return nil, err
	}
	t, ok := r.tables[name]
	if !ok {
		return nil, errors.New("unexpected file " + name)
	}
	cp := *t
	cp.Path = path
	return &cp, nil
}

func TestTableDocuments_AllColumns(t *testing.T) {
	table := &Table{
		Name:    "sample.xlsx",
		Path:    "knowledge_base/sample.xlsx",
		Columns: []string{"Concept", "Topic"},
		Rows:    [][]string{{"iso", "Isometric View"}},
	}

	docs := table.Documents(nil)
	require.Len(t, docs, 1)
	assert.Equal(t, "sample.xlsx_row_0", docs[0].ID)
	assert.Equal(t, "iso | Isometric View", docs[0].Text)
	assert.Equal(t, entity.DocumentMetadata{Source: "sample.xlsx", Row: 0, Path: "knowledge_base/sample.xlsx"}, docs[0].Metadata)
}

func TestTableDocuments_SkipsEmptyCellsAndRespectsColumns(t *testing.T) {
	table := &Table{
		Name:    "manual.xlsx",
		Columns: []string{"Concept ID", "Topic", "Tips"},
		Rows: [][]string{
			{"layer_management", "", "Use Ctrl+L"},
			{"dimension_tools", "Dimensioning"},
		},
	}

	docs := table.Documents(nil)
	require.Len(t, docs, 2)
	assert.Equal(t, "layer_management | Use Ctrl+L", docs[0].Text)
	assert.Equal(t, "dimension_tools | Dimensioning", docs[1].Text)
	assert.Equal(t, "manual.xlsx_row_1", docs[1].ID)

	selected := table.Documents([]string{"Tips", "Missing", "Concept ID"})
	assert.Equal(t, "Use Ctrl+L | layer_management", selected[0].Text)
	assert.Equal(t, " | dimension_tools", selected[1].Text, "selected columns keep empty values")
}

func TestIngestTable_OneBatchPerSource(t *testing.T) {
	store := &recordingStore{}
	p := NewPipeline(store, nil)

	table := &Table{
		Name:    "views.xlsx",
		Columns: []string{"Concept"},
		Rows:    [][]string{{"front"}, {"top"}, {"side"}},
	}
	n, err := p.IngestTable(context.Background(), table, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 3)
	assert.Equal(t, "views.xlsx_row_2", store.batches[0][2].ID)
}

func TestIngestTable_EmptyAndInvalid(t *testing.T) {
	store := &recordingStore{}
	p := NewPipeline(store, nil)

	n, err := p.IngestTable(context.Background(), &Table{Name: "empty.xlsx"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.batches)

	_, err = p.IngestTable(context.Background(), &Table{Rows: [][]string{{"x"}}}, nil)
	assert.ErrorIs(t, err, apperrors.ErrIngestionFailed)
}

func TestIngestDirectory_FailuresAreIsolated(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.xlsx", "b.xlsx", "c.xlsx", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	reader := &mapReader{
		tables: map[string]*Table{
			"a.xlsx": {Name: "a.xlsx", Columns: []string{"c"}, Rows: [][]string{{"one"}}},
			"c.xlsx": {Name: "c.xlsx", Columns: []string{"c"}, Rows: [][]string{{"two"}, {"three"}}},
		},
		errs: map[string]error{"b.xlsx": errors.New("corrupt workbook")},
	}
	store := &recordingStore{}

	report, err := NewPipeline(store, reader).IngestDirectory(context.Background(), dir, "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.xlsx", "b.xlsx", "c.xlsx"}, reader.reads)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Documents)
	require.Len(t, report.Files, 3)
	assert.Error(t, report.Files[1].Err)
	assert.Len(t, store.batches, 2)
}

func TestIngestDirectory_MissingDir(t *testing.T) {
	_, err := NewPipeline(&recordingStore{}, &mapReader{}).IngestDirectory(context.Background(), filepath.Join(t.TempDir(), "nope"), "", nil)
	assert.ErrorIs(t, err, apperrors.ErrFileNotFound)
}

func TestIngestPath_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	reader := &mapReader{tables: map[string]*Table{
		"sample.xlsx": {Name: "sample.xlsx", Columns: []string{"Concept", "Topic"}, Rows: [][]string{{"iso", "Isometric View"}}},
	}}
	store := &recordingStore{}

	report, err := NewPipeline(store, reader).IngestPath(context.Background(), path, "", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	require.Len(t, store.batches, 1)
	assert.Equal(t, path, store.batches[0][0].Metadata.Path)
}
