// Package bootstrap implements C11: a resumable bulk indexing pass over
// configured roots plus a debounced, batched file-system watcher that
// keeps the index current afterward. It is grounded on the teacher's
// internal/bootstrap state.go FileStateManager (load/save/merge
// JSON-backed progress) generalized to a store-backed tracker so
// progress survives process restarts without a side file.
package bootstrap

import (
	"context"

	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

// ProgressTracker records per-path bootstrap status so an interrupted
// bootstrap run can resume instead of restarting from scratch.
type ProgressTracker struct {
	repo *repository.BootstrapProgressRepository
}

func NewProgressTracker(repo *repository.BootstrapProgressRepository) *ProgressTracker {
	return &ProgressTracker{repo: repo}
}

// InitProgress replaces any prior pending state with a fresh PENDING
// set for paths, leaving existing COMPLETED/FAILED rows for paths not
// in this set untouched (a narrower scan than the last run simply
// leaves the rest of the index alone).
func (t *ProgressTracker) InitProgress(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := t.repo.Upsert(ctx, model.BootstrapProgressEntry{Path: p, Status: model.BootstrapPending}); err != nil {
			return err
		}
	}
	return nil
}

func (t *ProgressTracker) MarkProcessing(ctx context.Context, path string) error {
	return t.repo.Upsert(ctx, model.BootstrapProgressEntry{Path: path, Status: model.BootstrapProcessing})
}

func (t *ProgressTracker) MarkCompleted(ctx context.Context, path string) error {
	return t.repo.Upsert(ctx, model.BootstrapProgressEntry{Path: path, Status: model.BootstrapCompleted})
}

func (t *ProgressTracker) MarkFailed(ctx context.Context, path, message string) error {
	if err := t.repo.RecordError(ctx, path, message); err != nil {
		return err
	}
	return t.repo.Upsert(ctx, model.BootstrapProgressEntry{Path: path, Status: model.BootstrapFailed, LastError: message})
}

// GetRemaining returns every path not yet COMPLETED: still PENDING,
// stuck PROCESSING from a prior run that never finished, or FAILED.
func (t *ProgressTracker) GetRemaining(ctx context.Context) ([]model.BootstrapProgressEntry, error) {
	return t.repo.ListNonCompleted(ctx)
}

// Reset clears all tracked progress for a from-scratch rebuild.
func (t *ProgressTracker) Reset(ctx context.Context) error {
	return t.repo.Reset(ctx)
}
