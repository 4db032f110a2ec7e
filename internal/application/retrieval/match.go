package retrieval

import (
	"strings"

	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// MatchesSource 判断媒体标识是否关联到某个来源。
// 唯一的匹配方向：存储的 excel_row_id 包含 source（区分大小写）。
// 媒体仓储的批量查询使用同一关系，两侧结果保持一致。
func MatchesSource(excelRowID, source string) bool {
	if source == "" {
		return false
	}
	return strings.Contains(excelRowID, source)
}

// distinctSources 按首次出现顺序去重命中来源
func distinctSources(hits []RetrievedHit) []string {
	seen := make(map[string]struct{}, len(hits))
	sources := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Source == "" {
			continue
		}
		if _, ok := seen[h.Source]; ok {
			continue
		}
		seen[h.Source] = struct{}{}
		sources = append(sources, h.Source)
	}
	return sources
}

// groupBySource 将候选媒体按来源分组，保持候选的原始顺序。
// 一条记录可以同时归属多个来源。
func groupBySource(sources []string, candidates []*entity.MediaRecord) map[string][]MediaAsset {
	grouped := make(map[string][]MediaAsset, len(sources))
	for _, source := range sources {
		for _, record := range candidates {
			if record == nil || !MatchesSource(record.ExcelRowID, source) {
				continue
			}
			grouped[source] = append(grouped[source], NewMediaAsset(record))
		}
	}
	return grouped
}
