package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	apperrors "github.com/imrysn/kmti-icad-hub/pkg/errors"
	"github.com/imrysn/kmti-icad-hub/pkg/logger"
	"github.com/imrysn/kmti-icad-hub/pkg/metrics"
)

// DefaultPattern 目录模式下默认匹配的文件
const DefaultPattern = "*.xlsx"

// Pipeline 知识库入库流水线
type Pipeline struct {
	store  retrieval.VectorStore
	reader TableReader
}

// NewPipeline 创建入库流水线
func NewPipeline(store retrieval.VectorStore, reader TableReader) *Pipeline {
	return &Pipeline{store: store, reader: reader}
}

// FileResult 单个文件的入库结果
type FileResult struct {
	Path      string
	Documents int
	Err       error
}

// DirectoryReport 目录入库汇总
type DirectoryReport struct {
	Files     []FileResult
	Documents int
	Failed    int
}

// IngestTable 将一个来源的所有行作为一批写入向量集合
func (p *Pipeline) IngestTable(ctx context.Context, table *Table, columns []string) (int, error) {
	if table == nil {
		return 0, apperrors.ErrIngestionFailed.WithDetail("table is nil")
	}
	if table.Name == "" {
		return 0, apperrors.ErrIngestionFailed.WithDetail("table name is required")
	}

	docs := table.Documents(columns)
	if len(docs) == 0 {
		logger.Info(ctx, "table has no rows, nothing to ingest", "source", table.Name)
		return 0, nil
	}
	if err := retrieval.ValidateDocuments(docs); err != nil {
		return 0, err
	}
	if p.store == nil {
		return 0, retrieval.ErrVectorDisabled
	}

	if err := p.store.Ingest(ctx, docs); err != nil {
		return 0, fmt.Errorf("ingest %s: %w", table.Name, err)
	}

	metrics.IngestedDocuments.WithLabelValues(table.Name).Add(float64(len(docs)))
	logger.Info(ctx, "ingested table", "source", table.Name, "documents", len(docs))
	return len(docs), nil
}

// IngestFile 读取并入库单个表格文件
func (p *Pipeline) IngestFile(ctx context.Context, path string, columns []string) (int, error) {
	table, err := p.reader.Read(ctx, path)
	if err != nil {
		return 0, err
	}
	return p.IngestTable(ctx, table, columns)
}

// IngestDirectory 逐个处理目录下匹配的文件；单个文件失败只记录，不中断其余文件
func (p *Pipeline) IngestDirectory(ctx context.Context, dir, pattern string, columns []string) (*DirectoryReport, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "knowledge base directory not found")
	}
	if !info.IsDir() {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("%s is not a directory", dir))
	}

	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, apperrors.ErrInvalidParam.WithDetail(fmt.Sprintf("bad pattern %q: %v", pattern, err))
	}
	sort.Strings(files)

	report := &DirectoryReport{Files: make([]FileResult, 0, len(files))}
	if len(files) == 0 {
		logger.Warn(ctx, "no matching files found", "dir", dir, "pattern", pattern)
		return report, nil
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		n, err := p.IngestFile(ctx, path, columns)
		report.Files = append(report.Files, FileResult{Path: path, Documents: n, Err: err})
		if err != nil {
			report.Failed++
			metrics.IngestedFiles.WithLabelValues("error").Inc()
			logger.Error(ctx, "failed to ingest file", err, "path", path)
			continue
		}
		report.Documents += n
		metrics.IngestedFiles.WithLabelValues("ok").Inc()
	}

	logger.Info(ctx, "directory ingestion finished",
		"dir", dir,
		"files", len(files),
		"failed", report.Failed,
		"documents", report.Documents,
	)
	return report, nil
}

// IngestPath 根据路径类型选择单文件或目录模式
func (p *Pipeline) IngestPath(ctx context.Context, path, pattern string, columns []string) (*DirectoryReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeFileNotFound, "path not found")
	}
	if info.IsDir() {
		return p.IngestDirectory(ctx, path, pattern, columns)
	}

	n, err := p.IngestFile(ctx, path, columns)
	if err != nil {
		return nil, err
	}
	return &DirectoryReport{
		Files:     []FileResult{{Path: path, Documents: n}},
		Documents: n,
	}, nil
}
