package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
	"github.com/CLIAIMONITOR/orchestrator/internal/store"
)

// LinkRepository provides typed CRUD for model.Link.
type LinkRepository struct {
	store *store.Store
}

func NewLinkRepository(s *store.Store) *LinkRepository {
	return &LinkRepository{store: s}
}

func (r *LinkRepository) Create(ctx context.Context, l *model.Link) error {
	if err := l.Validate(); err != nil {
		return orcerr.Wrap(orcerr.KindValidation, "link invalid", err)
	}
	q := r.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO links (source_chunk_id, target_file_id, target_chunk_id, type, label, score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.SourceChunkID, l.TargetFileID, nullInt64Ptr(l.TargetChunkID), l.Type, nullString(l.Label), l.Score, l.CreatedAt)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "insert link", err)
	}
	return nil
}

func (r *LinkRepository) ListFromChunk(ctx context.Context, sourceChunkID int64) ([]*model.Link, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT link_id, source_chunk_id, target_file_id, target_chunk_id, type, label, score, created_at
		FROM links WHERE source_chunk_id = ?`, sourceChunkID)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list links from chunk", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		var l model.Link
		var targetChunkID sql.NullInt64
		var label sql.NullString
		if err := rows.Scan(&l.LinkID, &l.SourceChunkID, &l.TargetFileID, &targetChunkID, &l.Type, &label, &l.Score, &l.CreatedAt); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan link row", err)
		}
		if targetChunkID.Valid {
			v := targetChunkID.Int64
			l.TargetChunkID = &v
		}
		l.Label = label.String
		links = append(links, &l)
	}
	return links, rows.Err()
}

func nullInt64Ptr(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// BootstrapProgressRepository tracks per-path bootstrap status (C11),
// backing a resumable bootstrap the same way the teacher's
// internal/bootstrap state manager persisted progress across restarts.
type BootstrapProgressRepository struct {
	store *store.Store
}

func NewBootstrapProgressRepository(s *store.Store) *BootstrapProgressRepository {
	return &BootstrapProgressRepository{store: s}
}

func (r *BootstrapProgressRepository) Upsert(ctx context.Context, e model.BootstrapProgressEntry) error {
	q := r.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO bootstrap_progress (path, status, last_error, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			status = excluded.status,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		e.Path, string(e.Status), nullString(e.LastError), time.Now().UTC())
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "upsert bootstrap progress", err)
	}
	return nil
}

func (r *BootstrapProgressRepository) ListPending(ctx context.Context) ([]model.BootstrapProgressEntry, error) {
	return r.listByStatus(ctx, model.BootstrapPending)
}

func (r *BootstrapProgressRepository) ListByStatus(ctx context.Context, status model.BootstrapStatus) ([]model.BootstrapProgressEntry, error) {
	return r.listByStatus(ctx, status)
}

func (r *BootstrapProgressRepository) listByStatus(ctx context.Context, status model.BootstrapStatus) ([]model.BootstrapProgressEntry, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `SELECT path, status, last_error FROM bootstrap_progress WHERE status = ?`, string(status))
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list bootstrap progress", err)
	}
	defer rows.Close()

	var entries []model.BootstrapProgressEntry
	for rows.Next() {
		var e model.BootstrapProgressEntry
		var status string
		var lastError sql.NullString
		if err := rows.Scan(&e.Path, &status, &lastError); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan bootstrap progress row", err)
		}
		e.Status = model.BootstrapStatus(status)
		e.LastError = lastError.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListNonCompleted returns every tracked path not yet COMPLETED,
// regardless of whether it is still PENDING, mid-PROCESSING from an
// interrupted run, or previously FAILED.
func (r *BootstrapProgressRepository) ListNonCompleted(ctx context.Context) ([]model.BootstrapProgressEntry, error) {
	q := r.store.Querier(ctx)
	rows, err := q.QueryContext(ctx, `SELECT path, status, last_error FROM bootstrap_progress WHERE status != ?`, string(model.BootstrapCompleted))
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOTransient, "list non-completed bootstrap progress", err)
	}
	defer rows.Close()

	var entries []model.BootstrapProgressEntry
	for rows.Next() {
		var e model.BootstrapProgressEntry
		var status string
		var lastError sql.NullString
		if err := rows.Scan(&e.Path, &status, &lastError); err != nil {
			return nil, orcerr.Wrap(orcerr.KindIOTransient, "scan non-completed bootstrap progress row", err)
		}
		e.Status = model.BootstrapStatus(status)
		e.LastError = lastError.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Reset clears all tracked bootstrap progress, used when an operator
// wants a full from-scratch rebuild instead of a resume.
func (r *BootstrapProgressRepository) Reset(ctx context.Context) error {
	q := r.store.Querier(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM bootstrap_progress`); err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "reset bootstrap progress", err)
	}
	return nil
}

// RecordError appends a bootstrap failure without mutating the progress
// row's own LastError column, preserving the full failure log for
// operator inspection.
func (r *BootstrapProgressRepository) RecordError(ctx context.Context, path, message string) error {
	q := r.store.Querier(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO bootstrap_errors (path, message, occurred_at) VALUES (?, ?, ?)`,
		path, message, time.Now().UTC())
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "record bootstrap error", err)
	}
	return nil
}
