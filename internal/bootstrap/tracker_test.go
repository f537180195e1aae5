package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

func newTestTracker(t *testing.T) *ProgressTracker {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Shutdown() })
	return NewProgressTracker(repository.NewBootstrapProgressRepository(st))
}

func TestProgressTracker_InitProgressThenLifecycle(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.InitProgress(ctx, []string{"a.go", "b.go"}))

	remaining, err := tracker.GetRemaining(ctx)
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	require.NoError(t, tracker.MarkProcessing(ctx, "a.go"))
	require.NoError(t, tracker.MarkCompleted(ctx, "a.go"))
	require.NoError(t, tracker.MarkFailed(ctx, "b.go", "boom"))

	remaining, err = tracker.GetRemaining(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "b.go", remaining[0].Path)
	assert.Equal(t, model.BootstrapFailed, remaining[0].Status)
	assert.Equal(t, "boom", remaining[0].LastError)
}

func TestProgressTracker_Reset_ClearsAllProgress(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.InitProgress(ctx, []string{"a.go"}))
	require.NoError(t, tracker.Reset(ctx))

	remaining, err := tracker.GetRemaining(ctx)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
