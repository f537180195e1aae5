package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctxidx "github.com/CLIAIMONITOR/orchestrator/internal/context"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

func newTestOrchestrator(t *testing.T, roots []string, allowed []string, maxSize int64) (*Orchestrator, *repository.FileStateRepository, *ProgressTracker) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Shutdown() })

	files := repository.NewFileStateRepository(st)
	chunks := repository.NewChunkRepository(st)
	embeddings := repository.NewEmbeddingRepository(st)
	indexer := ctxidx.NewIndexer(files, chunks, embeddings, nil, nil)
	tracker := NewProgressTracker(repository.NewBootstrapProgressRepository(st))

	return NewOrchestrator(tracker, files, indexer, roots, allowed, maxSize), files, tracker
}

func TestOrchestrator_Run_IndexesDiscoveredFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# notes\n"), 0o644))

	o, files, tracker := newTestOrchestrator(t, []string{root}, nil, 0)
	require.NoError(t, o.Run(context.Background()))

	active, err := files.ListActive(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 2)

	remaining, err := tracker.GetRemaining(context.Background())
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestOrchestrator_Run_RespectsExtensionAllowlist(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte("binary"), 0o644))

	o, files, _ := newTestOrchestrator(t, []string{root}, []string{".go"}, 0)
	require.NoError(t, o.Run(context.Background()))

	active, err := files.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Contains(t, active[0].RelativePath, "main.go")
}

func TestOrchestrator_Run_IsolatesStaleMissingFileFailure(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	o, files, tracker := newTestOrchestrator(t, []string{root}, nil, 0)

	missing := filepath.Join(root, "gone.go")
	require.NoError(t, tracker.InitProgress(context.Background(), []string{missing}))

	require.NoError(t, o.Run(context.Background()))

	active, err := files.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)

	remaining, err := tracker.GetRemaining(context.Background())
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, missing, remaining[0].Path)
	assert.Equal(t, model.BootstrapFailed, remaining[0].Status)
}
