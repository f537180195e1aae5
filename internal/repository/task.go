// Package repository implements typed CRUD (C2) over the store's
// ambient connection, generalizing the teacher's internal/memory/repo.go
// and internal/memory/documents.go hand-written scan/upsert pattern to
// every entity in the data model.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// TaskRepository provides typed CRUD for model.Task.
type TaskRepository struct {
	store *store.Store
}

func NewTaskRepository(s *store.Store) *TaskRepository {
	return &TaskRepository{store: s}
}

func (r *TaskRepository) Create(ctx context.Context, t *model.Task) error {
	if err := t.Validate(); err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "create task", err)
	}
	assignees, err := json.Marshal(t.AssigneeIDs)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal assignee ids", err)
	}
	deps, err := json.Marshal(t.Dependencies)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal dependencies", err)
	}
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal metadata", err)
	}

	q := r.store.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, type, status, routing,
			assignee_ids, dependencies, complexity, risk, created_at, updated_at, due_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, nullString(t.Description), string(t.Type), string(t.Status), string(t.Routing),
		string(assignees), string(deps), t.Complexity, t.Risk, t.CreatedAt, nullTime(t.UpdatedAt), nullTimePtr(t.DueAt), string(meta))
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "insert task", err)
	}
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	q := r.store.Querier(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, title, description, type, status, routing, assignee_ids,
			dependencies, complexity, risk, created_at, updated_at, due_at, metadata
		FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, orcerr.New(orcerr.KindNotFound, "task not found").WithTask(id)
	}
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan task", err)
	}
	return t, nil
}

func (r *TaskRepository) UpdateStatus(ctx context.Context, id string, status model.TaskStatus, updatedAt time.Time) error {
	q := r.store.Querier(ctx)
	res, err := q.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, string(status), updatedAt, id)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "update task status", err)
	}
	return requireAffected(res, orcerr.New(orcerr.KindNotFound, "task not found").WithTask(id))
}

func (r *TaskRepository) ListByStatus(ctx context.Context, status model.TaskStatus) ([]*model.Task, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, title, description, type, status, routing, assignee_ids,
			dependencies, complexity, risk, created_at, updated_at, due_at, metadata
		FROM tasks WHERE status = ? ORDER BY created_at`, string(status))
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list tasks by status", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan task row", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *TaskRepository) AppendTransition(ctx context.Context, taskID string, rec model.TransitionRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "marshal transition metadata", err)
	}
	q := r.store.Querier(ctx)
	_, err = q.ExecContext(ctx, `
		INSERT INTO task_transitions (task_id, from_status, to_status, at, metadata)
		VALUES (?, ?, ?, ?, ?)`, taskID, string(rec.From), string(rec.To), rec.At, string(meta))
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "append transition", err)
	}
	return nil
}

func (r *TaskRepository) History(ctx context.Context, taskID string) ([]model.TransitionRecord, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT from_status, to_status, at, metadata FROM task_transitions
		WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list transitions", err)
	}
	defer rows.Close()

	var history []model.TransitionRecord
	for rows.Next() {
		var rec model.TransitionRecord
		var from, to, metaJSON string
		if err := rows.Scan(&from, &to, &rec.At, &metaJSON); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan transition row", err)
		}
		rec.From = model.TaskStatus(from)
		rec.To = model.TaskStatus(to)
		if metaJSON != "" {
			_ = json.Unmarshal([]byte(metaJSON), &rec.Metadata)
		}
		history = append(history, rec)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var t model.Task
	var description, taskType, status, routing, assigneesJSON, depsJSON, metaJSON sql.NullString
	var updatedAt, dueAt sql.NullTime

	if err := row.Scan(&t.ID, &t.Title, &description, &taskType, &status, &routing,
		&assigneesJSON, &depsJSON, &t.Complexity, &t.Risk, &t.CreatedAt, &updatedAt, &dueAt, &metaJSON); err != nil {
		return nil, err
	}

	t.Description = description.String
	t.Type = model.TaskType(taskType.String)
	t.Status = model.TaskStatus(status.String)
	t.Routing = model.RoutingStrategy(routing.String)
	if updatedAt.Valid {
		t.UpdatedAt = updatedAt.Time
	}
	if dueAt.Valid {
		d := dueAt.Time
		t.DueAt = &d
	}
	if assigneesJSON.Valid && assigneesJSON.String != "" {
		_ = json.Unmarshal([]byte(assigneesJSON.String), &t.AssigneeIDs)
	}
	if depsJSON.Valid && depsJSON.String != "" {
		_ = json.Unmarshal([]byte(depsJSON.String), &t.Dependencies)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		_ = json.Unmarshal([]byte(metaJSON.String), &t.Metadata)
	}
	return &t, nil
}
