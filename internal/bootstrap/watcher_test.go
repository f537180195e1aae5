package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxidx "github.com/CLIAIMONITOR/orchestrator/internal/context"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

func newTestWatcher(t *testing.T, root string, allowedExtensions, ignorePatterns []string) (*WatcherDaemon, *repository.FileStateRepository) {
	t.Helper()
	return newTestWatcherWithMaxSize(t, root, allowedExtensions, ignorePatterns, 0)
}

func newTestWatcherWithMaxSize(t *testing.T, root string, allowedExtensions, ignorePatterns []string, maxSize int64) (*WatcherDaemon, *repository.FileStateRepository) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Shutdown() })

	files := repository.NewFileStateRepository(st)
	chunks := repository.NewChunkRepository(st)
	embeddings := repository.NewEmbeddingRepository(st)
	indexer := ctxidx.NewIndexer(files, chunks, embeddings, nil, nil)

	d, err := NewWatcherDaemon(root, allowedExtensions, ignorePatterns, 20*time.Millisecond, 20*time.Millisecond, maxSize, files, indexer)
	require.NoError(t, err)
	return d, files
}

func TestWatcherDaemon_IndexesCreatedFile(t *testing.T) {
	root := t.TempDir()
	d, files := newTestWatcher(t, root, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(time.Second)

	require.NoError(t, os.WriteFile(filepath.Join(root, "watched.go"), []byte("package watched\n"), 0o644))

	require.Eventually(t, func() bool {
		active, err := files.ListActive(context.Background())
		return err == nil && len(active) == 1
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDaemon_IgnoresDisallowedExtension(t *testing.T) {
	root := t.TempDir()
	d, files := newTestWatcher(t, root, []string{".go"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(time.Second)

	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("binary"), 0o644))
	time.Sleep(200 * time.Millisecond)

	active, err := files.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestWatcherDaemon_SkipsFileOverSizeCap(t *testing.T) {
	root := t.TempDir()
	d, files := newTestWatcherWithMaxSize(t, root, nil, nil, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Start(ctx))
	defer d.Stop(time.Second)

	require.NoError(t, os.WriteFile(filepath.Join(root, "big.go"), []byte("package toolarge\n"), 0o644))
	time.Sleep(200 * time.Millisecond)

	active, err := files.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestWatcherDaemon_Stop_IsIdempotentWhenNeverStarted(t *testing.T) {
	root := t.TempDir()
	d, _ := newTestWatcher(t, root, nil, nil)
	assert.NotPanics(t, func() { d.Stop(time.Second) })
}
