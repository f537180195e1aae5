package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := store.Open(path, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Shutdown() })
	return st
}
