package dto

import (
	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
)

// IngestRequest 服务端目录入库请求；为空时使用配置的知识库目录
type IngestRequest struct {
	Path    string   `json:"path"`
	Pattern string   `json:"pattern"`
	Columns []string `json:"columns"`
}

// IngestFileResult 单文件入库结果
type IngestFileResult struct {
	Path      string `json:"path"`
	Documents int    `json:"documents"`
	Error     string `json:"error,omitempty"`
}

// IngestResponse 入库汇总
type IngestResponse struct {
	Documents int                `json:"documents"`
	Failed    int                `json:"failed"`
	Files     []IngestFileResult `json:"files"`
}

// ToIngestResponse 转换目录入库报告
func ToIngestResponse(r *ingestion.DirectoryReport) *IngestResponse {
	out := &IngestResponse{
		Documents: r.Documents,
		Failed:    r.Failed,
		Files:     make([]IngestFileResult, 0, len(r.Files)),
	}
	for _, f := range r.Files {
		item := IngestFileResult{Path: f.Path, Documents: f.Documents}
		if f.Err != nil {
			item.Error = f.Err.Error()
		}
		out.Files = append(out.Files, item)
	}
	return out
}
