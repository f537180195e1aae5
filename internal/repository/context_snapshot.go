package repository

import (
	"context"
	"database/sql"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// ContextSnapshotRepository provides typed CRUD for model.ContextSnapshot,
// backing the orchestration engine's getTaskContext/updateTaskContext.
type ContextSnapshotRepository struct {
	store *store.Store
}

func NewContextSnapshotRepository(s *store.Store) *ContextSnapshotRepository {
	return &ContextSnapshotRepository{store: s}
}

func (r *ContextSnapshotRepository) Create(ctx context.Context, snap *model.ContextSnapshot) error {
	q := r.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO context_snapshots (id, task_id, content, created_at) VALUES (?, ?, ?, ?)`,
		snap.ID, snap.TaskID, snap.Content, snap.CreatedAt)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "insert context snapshot", err)
	}
	return nil
}

// Latest returns the most recently created snapshot for taskID.
func (r *ContextSnapshotRepository) Latest(ctx context.Context, taskID string) (*model.ContextSnapshot, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, task_id, content, created_at FROM context_snapshots
		WHERE task_id = ? ORDER BY created_at DESC LIMIT 1`, taskID)
	var snap model.ContextSnapshot
	if err := row.Scan(&snap.ID, &snap.TaskID, &snap.Content, &snap.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, orcerr.New(orcerr.KindNotFound, "no context snapshot for task").WithTask(taskID)
		}
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan context snapshot", err)
	}
	return &snap, nil
}

// History returns every snapshot for taskID, oldest first.
func (r *ContextSnapshotRepository) History(ctx context.Context, taskID string) ([]*model.ContextSnapshot, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, task_id, content, created_at FROM context_snapshots
		WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list context snapshots", err)
	}
	defer rows.Close()

	var snaps []*model.ContextSnapshot
	for rows.Next() {
		var snap model.ContextSnapshot
		if err := rows.Scan(&snap.ID, &snap.TaskID, &snap.Content, &snap.CreatedAt); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan context snapshot row", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}
