package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesDirectoryAndInitsSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	st, err := Open(dbPath, 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	row := st.Querier(context.Background()).QueryRowContext(context.Background(), "SELECT count(*) FROM tasks")
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)
}

func TestOpen_ReopenExistingDatabaseSucceeds(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	first, err := Open(dbPath, 1)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown())

	second, err := Open(dbPath, 1)
	require.NoError(t, err)
	defer func() { _ = second.Shutdown() }()

	row := second.Querier(context.Background()).QueryRowContext(context.Background(), "SELECT count(*) FROM tasks")
	var count int
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 0, count)
}

func insertTask(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, type, status, routing, assignee_ids, dependencies, complexity, risk, metadata, created_at, updated_at)
		VALUES (?, 'title', '', 'IMPLEMENTATION', 'PENDING', 'SOLO', '[]', '[]', 1, 1, '{}', ?, ?)`,
		id, time.Now().UTC(), time.Now().UTC())
	return err
}

func countTasks(t *testing.T, st *Store, id string) int {
	t.Helper()
	row := st.Querier(context.Background()).QueryRowContext(context.Background(), "SELECT count(*) FROM tasks WHERE id = ?", id)
	var count int
	require.NoError(t, row.Scan(&count))
	return count
}

func TestTransaction_CommitsOnSuccess(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	err = st.Transaction(context.Background(), func(ctx context.Context) error {
		return insertTask(ctx, st.Querier(ctx), "t1")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countTasks(t, st, "t1"))
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	boom := assert.AnError
	err = st.Transaction(context.Background(), func(ctx context.Context) error {
		if insertErr := insertTask(ctx, st.Querier(ctx), "t2"); insertErr != nil {
			return insertErr
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countTasks(t, st, "t2"))
}

func TestTransaction_NestedSavepoint_InnerFailureLeavesOuterIntact(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	err = st.Transaction(context.Background(), func(ctx context.Context) error {
		if err := insertTask(ctx, st.Querier(ctx), "outer"); err != nil {
			return err
		}
		innerErr := st.Transaction(ctx, func(innerCtx context.Context) error {
			if err := insertTask(innerCtx, st.Querier(innerCtx), "inner"); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.Error(t, innerErr)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countTasks(t, st, "outer"))
	assert.Equal(t, 0, countTasks(t, st, "inner"))
}

func TestTransaction_NestedSavepoint_BothSucceedCommitTogether(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	err = st.Transaction(context.Background(), func(ctx context.Context) error {
		if err := insertTask(ctx, st.Querier(ctx), "outer2"); err != nil {
			return err
		}
		return st.Transaction(ctx, func(innerCtx context.Context) error {
			return insertTask(innerCtx, st.Querier(innerCtx), "inner2")
		})
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countTasks(t, st, "outer2"))
	assert.Equal(t, 1, countTasks(t, st, "inner2"))
}

func TestQuerier_WithoutAmbientTransactionUsesPool(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), 1)
	require.NoError(t, err)
	defer func() { _ = st.Shutdown() }()

	q := st.Querier(context.Background())
	require.NoError(t, insertTask(context.Background(), q, "pooled"))
	assert.Equal(t, 1, countTasks(t, st, "pooled"))
}
