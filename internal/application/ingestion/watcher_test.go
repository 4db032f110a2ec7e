package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/domain/entity"
)

// signalingStore 每次入库把来源名发到通道，供监听协程与测试协程同步
type signalingStore struct {
	ingested chan string
}

func (s *signalingStore) Ingest(_ context.Context, docs []*entity.Document) error {
	if len(docs) > 0 {
		s.ingested <- docs[0].Metadata.Source
	}
	return nil
}

func (s *signalingStore) Query(context.Context, string, int) ([]retrieval.RetrievedHit, error) {
	return nil, nil
}

func (s *signalingStore) Stats(context.Context) (*retrieval.CollectionStats, error) {
	return &retrieval.CollectionStats{}, nil
}

func (s *signalingStore) Clear(context.Context) error { return nil }

func TestWatcherRun_ReingestsChangedFile(t *testing.T) {
	dir := t.TempDir()
	store := &signalingStore{ingested: make(chan string, 64)}
	reader := &mapReader{tables: map[string]*Table{
		"manual.xlsx": {Name: "manual.xlsx", Columns: []string{"Topic"}, Rows: [][]string{{"Section views"}}},
	}}
	w := NewWatcher(NewPipeline(store, reader), dir, "*.xlsx", nil, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	target := filepath.Join(dir, "manual.xlsx")
	ignored := filepath.Join(dir, "notes.txt")
	var source string
	// 监听注册完成前的写入会丢失，所以重复写直到收到入库
	require.Eventually(t, func() bool {
		_ = os.WriteFile(ignored, []byte("scratch"), 0o644)
		_ = os.WriteFile(target, []byte("x"), 0o644)
		select {
		case source = <-store.ingested:
			return true
		default:
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)
	assert.Equal(t, "manual.xlsx", source)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}

	close(store.ingested)
	for src := range store.ingested {
		assert.Equal(t, "manual.xlsx", src)
	}
}

func TestWatcherRun_MissingDirectory(t *testing.T) {
	store := &signalingStore{ingested: make(chan string, 1)}
	w := NewWatcher(NewPipeline(store, &mapReader{}), filepath.Join(t.TempDir(), "missing"), "", nil, 0)

	err := w.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to watch")
}

func TestClassifyEvent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "manual.xlsx")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	sub := filepath.Join(dir, "archive.xlsx")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name   string
		path   string
		op     fsnotify.Op
		want   ChangeType
		wantOK bool
	}{
		{"create file", file, fsnotify.Create, ChangeCreated, true},
		{"write file", file, fsnotify.Write, ChangeUpdated, true},
		{"remove file", file, fsnotify.Remove, ChangeDeleted, true},
		{"rename file", file, fsnotify.Rename, ChangeDeleted, true},
		{"chmod ignored", file, fsnotify.Chmod, "", false},
		{"directory ignored", sub, fsnotify.Create, "", false},
		{"hidden ignored", filepath.Join(dir, ".manual.xlsx"), fsnotify.Write, "", false},
		{"office lock ignored", filepath.Join(dir, "~$manual.xlsx"), fsnotify.Create, "", false},
		{"pattern mismatch", filepath.Join(dir, "notes.txt"), fsnotify.Write, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classifyEvent(fsnotify.Event{Name: tt.path, Op: tt.op}, "*.xlsx")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
