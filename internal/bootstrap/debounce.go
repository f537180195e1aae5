package bootstrap

import (
	"sync"
	"time"
)

// WatchKind orders raw file-system events so a debounce window can
// resolve a burst of events for the same path to a single outcome.
type WatchKind int

const (
	WatchCreated WatchKind = iota
	WatchModified
	WatchDeleted
)

// kindRank gives WatchKind its CREATED < MODIFIED < DELETED ordering:
// when several events land for the same path inside one debounce
// window, the highest-ranked kind observed wins, so a CREATED followed
// by a DELETED within the window resolves to DELETED rather than being
// dropped as a no-op. This is a highest-rank-wins policy on Kind, not
// last-write-wins on time: a DELETED followed by a later MODIFIED inside
// the same window still resolves to DELETED, since rank compares
// regardless of arrival order.
func kindRank(k WatchKind) int {
	switch k {
	case WatchCreated:
		return 0
	case WatchModified:
		return 1
	case WatchDeleted:
		return 2
	default:
		return 0
	}
}

// RawEvent is one file-system notification before debouncing.
type RawEvent struct {
	Path string
	Kind WatchKind
}

// EventDebouncer coalesces bursts of events for the same path into a
// single emission once the path has been quiet for its debounce
// window, resolving the emitted Kind by kindRank rather than arrival
// order.
type EventDebouncer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*pendingEntry
	emit    func(RawEvent)
	timer   func(d time.Duration, f func()) *time.Timer
}

type pendingEntry struct {
	kind  WatchKind
	timer *time.Timer
}

func NewEventDebouncer(window time.Duration, emit func(RawEvent)) *EventDebouncer {
	return &EventDebouncer{
		window:  window,
		pending: make(map[string]*pendingEntry),
		emit:    emit,
	}
}

// Submit records a raw event, resetting the path's quiescence timer.
func (d *EventDebouncer) Submit(ev RawEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.pending[ev.Path]
	if !ok {
		entry = &pendingEntry{}
		d.pending[ev.Path] = entry
	} else {
		entry.timer.Stop()
	}

	if kindRank(ev.Kind) >= kindRank(entry.kind) || !ok {
		entry.kind = ev.Kind
	}

	path := ev.Path
	entry.timer = time.AfterFunc(d.window, func() { d.flush(path) })
}

func (d *EventDebouncer) flush(path string) {
	d.mu.Lock()
	entry, ok := d.pending[path]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, path)
	kind := entry.kind
	d.mu.Unlock()

	d.emit(RawEvent{Path: path, Kind: kind})
}

// Flush immediately emits every path still waiting out its quiescence
// window, used by WatcherDaemon.Stop so no pending event is lost.
func (d *EventDebouncer) Flush() {
	d.mu.Lock()
	due := make([]RawEvent, 0, len(d.pending))
	for path, entry := range d.pending {
		entry.timer.Stop()
		due = append(due, RawEvent{Path: path, Kind: entry.kind})
	}
	d.pending = make(map[string]*pendingEntry)
	d.mu.Unlock()

	for _, ev := range due {
		d.emit(ev)
	}
}
