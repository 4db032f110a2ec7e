package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/imrysn/kmti-icad-hub/pkg/logger"
)

// ChangeType 文件变更类型
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// Watcher 监听知识库目录，文件新增或修改后重新入库。
// 重新入库按文档 ID 覆盖；删除文件不会移除已入库文档，需要整体清空。
type Watcher struct {
	pipeline *Pipeline
	dir      string
	pattern  string
	columns  []string
	debounce time.Duration
}

// NewWatcher 创建目录监听器
func NewWatcher(pipeline *Pipeline, dir, pattern string, columns []string, debounce time.Duration) *Watcher {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		pipeline: pipeline,
		dir:      dir,
		pattern:  pattern,
		columns:  columns,
		debounce: debounce,
	}
}

// Run 阻塞直到 ctx 取消
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	logger.Info(ctx, "watching knowledge base directory", "dir", w.dir, "pattern", w.pattern)

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			change, ok := classifyEvent(ev, w.pattern)
			if !ok {
				continue
			}
			if change == ChangeDeleted {
				delete(pending, ev.Name)
				logger.Warn(ctx, "knowledge base file removed; its documents stay until the collection is cleared", "path", ev.Name)
				continue
			}
			pending[ev.Name] = time.Now().Add(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error(ctx, "watcher error", err)

		case now := <-ticker.C:
			for path, due := range pending {
				if now.Before(due) {
					continue
				}
				delete(pending, path)
				if _, err := w.pipeline.IngestFile(ctx, path, w.columns); err != nil {
					logger.Error(ctx, "failed to re-ingest file", err, "path", path)
				}
			}
		}
	}
}

// classifyEvent 把 fsnotify 事件映射为变更类型；目录、隐藏文件、权限变化与不匹配的文件被忽略
func classifyEvent(ev fsnotify.Event, pattern string) (ChangeType, bool) {
	base := filepath.Base(ev.Name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return "", false
	}
	if ok, _ := filepath.Match(pattern, base); !ok {
		return "", false
	}

	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return ChangeDeleted, true
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return "", false
		}
		return ChangeCreated, true
	case ev.Has(fsnotify.Write):
		return ChangeUpdated, true
	}
	return "", false
}
