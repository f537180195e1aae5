package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	ctxidx "github.com/CLIAIMONITOR/orchestrator/internal/context"
	"github.com/CLIAIMONITOR/orchestrator/internal/repository"
)

// WatcherDaemon keeps the index current after bootstrap by watching
// configured roots for changes and running each batch through the
// indexer. Pipeline: fsnotify raw events -> EventDebouncer (resolves a
// burst to one Kind per path) -> path filter -> Batcher -> indexing.
type WatcherDaemon struct {
	root              string
	allowedExtensions map[string]bool
	ignorePatterns    []string
	maxSize           int64

	watcher   *fsnotify.Watcher
	debouncer *EventDebouncer
	batcher   *Batcher

	files   *repository.FileStateRepository
	indexer *ctxidx.Indexer

	log *logrus.Entry

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewWatcherDaemon builds a daemon for root, debouncing on debounceWindow
// and flushing batches every batchWindow, filtering to allowedExtensions
// (nil/empty means all extensions), excluding any path matching an
// ignorePattern (filepath.Match glob against the path's base name), and
// skipping files larger than maxSizeBytes (0 means no cap).
func NewWatcherDaemon(root string, allowedExtensions []string, ignorePatterns []string, debounceWindow, batchWindow time.Duration, maxSizeBytes int64, files *repository.FileStateRepository, indexer *ctxidx.Indexer) (*WatcherDaemon, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(allowedExtensions))
	for _, ext := range allowedExtensions {
		allowed[ext] = true
	}

	d := &WatcherDaemon{
		root:              root,
		allowedExtensions: allowed,
		ignorePatterns:    ignorePatterns,
		maxSize:           maxSizeBytes,
		watcher:           fsw,
		files:             files,
		indexer:           indexer,
		log:               logrus.WithField("component", "watcher_daemon"),
	}

	d.debouncer = NewEventDebouncer(debounceWindow, d.onDebounced)
	d.batcher = NewBatcher(batchWindow, d.onBatch)
	return d, nil
}

// Start watches root recursively and begins the debounce/batch
// pipeline in a background goroutine, which runs until ctx is cancelled
// or Stop is called. Start itself returns as soon as the watches are set.
func (d *WatcherDaemon) Start(ctx context.Context) error {
	if err := d.addRecursive(d.root); err != nil {
		return err
	}

	d.mu.Lock()
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.mu.Unlock()

	go d.loop(ctx)
	return nil
}

func (d *WatcherDaemon) loop(ctx context.Context) {
	defer close(d.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.handleRaw(ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.WithError(err).Warn("watcher error")
		}
	}
}

func (d *WatcherDaemon) handleRaw(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = d.addRecursive(ev.Name)
		}
	}

	var kind WatchKind
	switch {
	case ev.Has(fsnotify.Create):
		kind = WatchCreated
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		kind = WatchDeleted
	case ev.Has(fsnotify.Write), ev.Has(fsnotify.Chmod):
		kind = WatchModified
	default:
		return
	}

	d.debouncer.Submit(RawEvent{Path: ev.Name, Kind: kind})
}

// onDebounced applies the path filter before handing the path to the
// batcher: under root, extension allowed when a filter is set, and not
// matched by any ignore pattern.
func (d *WatcherDaemon) onDebounced(ev RawEvent) {
	if !strings.HasPrefix(ev.Path, d.root) {
		return
	}
	if len(d.allowedExtensions) > 0 && !d.allowedExtensions[filepath.Ext(ev.Path)] {
		return
	}
	for _, pattern := range d.ignorePatterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(ev.Path)); matched {
			return
		}
	}
	d.batcher.Add(ev.Path)
}

func (d *WatcherDaemon) onBatch(paths []string) {
	ctx := context.Background()
	for _, path := range paths {
		if err := d.indexOne(ctx, path); err != nil {
			d.log.WithError(err).WithField("path", path).Warn("incremental indexing failed")
		}
	}
}

func (d *WatcherDaemon) indexOne(ctx context.Context, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		existing, getErr := d.files.GetByPath(ctx, path)
		if getErr != nil || existing == nil {
			return nil
		}
		return d.indexer.IndexFile(ctx, ctxidx.Change{RelativePath: path, Kind: ctxidx.ChangeDeleted}, "")
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if d.maxSize > 0 && info.Size() > d.maxSize {
		return nil
	}

	hash, size, err := ctxidx.HashFile(path)
	if err != nil {
		return err
	}

	kind := ctxidx.ChangeNew
	if existing, err := d.files.GetByPath(ctx, path); err == nil && existing != nil {
		switch {
		case existing.IsDeleted:
			kind = ctxidx.ChangeNew
		case existing.ContentHash == hash:
			kind = ctxidx.ChangeUnchanged
		default:
			kind = ctxidx.ChangeModified
		}
	}
	if kind == ctxidx.ChangeUnchanged {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return d.indexer.IndexFile(ctx, ctxidx.Change{RelativePath: path, Kind: kind, ContentHash: hash, SizeBytes: size}, string(data))
}

func (d *WatcherDaemon) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return d.watcher.Add(path)
		}
		return nil
	})
}

// Stop flushes any pending debounce and batch state within grace
// before tearing down the fsnotify watcher and cancelling the run loop.
func (d *WatcherDaemon) Stop(grace time.Duration) {
	d.mu.Lock()
	running := d.running
	d.running = false
	d.mu.Unlock()
	if !running {
		return
	}

	done := make(chan struct{})
	go func() {
		d.debouncer.Flush()
		d.batcher.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		d.log.Warn("watcher stop grace period elapsed before flush completed")
	}

	close(d.stopCh)
	<-d.doneCh
	_ = d.watcher.Close()
}
