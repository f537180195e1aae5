package bootstrap

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	ctxidx "github.com/CLIAIMONITOR/orchestrator/internal/context"
	"github.com/CLIAIMONITOR/orchestrator/internal/model"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

// Orchestrator runs a resumable, prioritized bulk indexing pass over a
// set of configured roots.
type Orchestrator struct {
	tracker *ProgressTracker
	files   *repository.FileStateRepository
	indexer *ctxidx.Indexer
	roots   []string
	allowed map[string]bool
	maxSize int64
	log     *logrus.Entry
}

func NewOrchestrator(tracker *ProgressTracker, files *repository.FileStateRepository, indexer *ctxidx.Indexer, roots []string, allowedExtensions []string, maxFileSizeBytes int64) *Orchestrator {
	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[ext] = true
	}
	return &Orchestrator{
		tracker: tracker,
		files:   files,
		indexer: indexer,
		roots:   roots,
		allowed: allowed,
		maxSize: maxFileSizeBytes,
		log:     logrus.WithField("component", "bootstrap_orchestrator"),
	}
}

// Run scans the configured roots, prioritizes the discovered and any
// previously-remaining paths, then indexes each one, isolating a single
// file's failure from the rest of the pass.
func (o *Orchestrator) Run(ctx context.Context) error {
	discovered, err := o.scan()
	if err != nil {
		return err
	}

	remaining, err := o.tracker.GetRemaining(ctx)
	if err != nil {
		return err
	}

	merged := mergePaths(discovered, remaining)
	if err := o.tracker.InitProgress(ctx, merged); err != nil {
		return err
	}

	entries := make([]ctxidx.PrioritizeEntry, 0, len(merged))
	for i, path := range merged {
		size := int64(0)
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
		}
		entries = append(entries, ctxidx.PrioritizeEntry{RelativePath: path, SizeBytes: size, OriginalIndex: i})
	}
	ordered := ctxidx.Prioritize(entries)

	for _, entry := range ordered {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		o.processOne(ctx, entry.RelativePath)
	}
	return nil
}

func (o *Orchestrator) processOne(ctx context.Context, path string) {
	if err := o.tracker.MarkProcessing(ctx, path); err != nil {
		o.log.WithError(err).WithField("path", path).Error("mark processing failed")
		return
	}

	change, content, err := o.loadChange(ctx, path)
	if err != nil {
		o.fail(ctx, path, err)
		return
	}

	if err := o.indexer.IndexFile(ctx, change, content); err != nil {
		o.fail(ctx, path, err)
		return
	}

	if err := o.tracker.MarkCompleted(ctx, path); err != nil {
		o.log.WithError(err).WithField("path", path).Error("mark completed failed")
	}
}

func (o *Orchestrator) fail(ctx context.Context, path string, cause error) {
	o.log.WithError(cause).WithField("path", path).Warn("indexing failed for file")
	if err := o.tracker.MarkFailed(ctx, path, cause.Error()); err != nil {
		o.log.WithError(err).WithField("path", path).Error("mark failed failed")
	}
}

func (o *Orchestrator) loadChange(ctx context.Context, path string) (ctxidx.Change, string, error) {
	hash, size, err := ctxidx.HashFile(path)
	if err != nil {
		return ctxidx.Change{}, "", err
	}

	existing, err := o.files.GetByPath(ctx, path)
	kind := ctxidx.ChangeNew
	if err == nil && existing != nil {
		switch {
		case existing.IsDeleted:
			kind = ctxidx.ChangeNew
		case existing.ContentHash == hash:
			kind = ctxidx.ChangeUnchanged
		default:
			kind = ctxidx.ChangeModified
		}
	}

	change := ctxidx.Change{RelativePath: path, Kind: kind, ContentHash: hash, SizeBytes: size}
	if kind == ctxidx.ChangeUnchanged {
		return change, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ctxidx.Change{}, "", err
	}
	return change, string(data), nil
}

func (o *Orchestrator) scan() ([]string, error) {
	var paths []string
	for _, root := range o.roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			if len(o.allowed) > 0 && !o.allowed[filepath.Ext(path)] {
				return nil
			}
			if o.maxSize > 0 && info.Size() > o.maxSize {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// mergePaths combines freshly discovered paths with paths still
// outstanding from a prior interrupted run, de-duplicating so a path
// appearing in both lists is only processed once; new discoveries win
// over stale remaining entries when the two disagree about a path.
func mergePaths(discovered []string, remaining []model.BootstrapProgressEntry) []string {
	seen := make(map[string]bool, len(discovered)+len(remaining))
	merged := make([]string, 0, len(discovered)+len(remaining))
	for _, p := range discovered {
		if !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}
	for _, e := range remaining {
		if !seen[e.Path] {
			seen[e.Path] = true
			merged = append(merged, e.Path)
		}
	}
	return merged
}
