package bootstrap

import (
	"sync"
	"time"
)

// Batcher accumulates distinct paths emitted by the debouncer and
// flushes them either when batchWindow elapses or when explicitly
// stopped, whichever comes first.
type Batcher struct {
	mu          sync.Mutex
	window      time.Duration
	pending     map[string]struct{}
	flushFn     func([]string)
	timer       *time.Timer
	stopped     bool
}

func NewBatcher(window time.Duration, flushFn func([]string)) *Batcher {
	return &Batcher{
		window:  window,
		pending: make(map[string]struct{}),
		flushFn: flushFn,
	}
}

// Add enqueues a path, starting the flush timer on the first addition
// to an empty batch.
func (b *Batcher) Add(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.pending[path] = struct{}{}
	if b.timer == nil {
		b.timer = time.AfterFunc(b.window, b.timerFlush)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	paths := b.drainLocked()
	b.mu.Unlock()
	if len(paths) > 0 {
		b.flushFn(paths)
	}
}

func (b *Batcher) drainLocked() []string {
	paths := make([]string, 0, len(b.pending))
	for p := range b.pending {
		paths = append(paths, p)
	}
	b.pending = make(map[string]struct{})
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	return paths
}

// Stop flushes any pending batch immediately and prevents further
// additions, matching WatcherDaemon's requirement that stop flushes
// before returning.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	paths := b.drainLocked()
	b.mu.Unlock()
	if len(paths) > 0 {
		b.flushFn(paths)
	}
}
