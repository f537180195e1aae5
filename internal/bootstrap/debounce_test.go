package bootstrap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDebouncer_CoalescesBurstToOneEmission(t *testing.T) {
	var mu sync.Mutex
	var emitted []RawEvent
	d := NewEventDebouncer(20*time.Millisecond, func(ev RawEvent) {
		mu.Lock()
		emitted = append(emitted, ev)
		mu.Unlock()
	})

	d.Submit(RawEvent{Path: "a.go", Kind: WatchCreated})
	d.Submit(RawEvent{Path: "a.go", Kind: WatchModified})
	d.Submit(RawEvent{Path: "a.go", Kind: WatchModified})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, WatchModified, emitted[0].Kind)
}

func TestEventDebouncer_HighestRankWinsRegardlessOfArrivalOrder(t *testing.T) {
	var mu sync.Mutex
	var emitted []RawEvent
	d := NewEventDebouncer(20*time.Millisecond, func(ev RawEvent) {
		mu.Lock()
		emitted = append(emitted, ev)
		mu.Unlock()
	})

	d.Submit(RawEvent{Path: "b.go", Kind: WatchDeleted})
	d.Submit(RawEvent{Path: "b.go", Kind: WatchCreated})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, WatchDeleted, emitted[0].Kind)
}

func TestEventDebouncer_Flush_EmitsPendingImmediately(t *testing.T) {
	var mu sync.Mutex
	var emitted []RawEvent
	d := NewEventDebouncer(time.Hour, func(ev RawEvent) {
		mu.Lock()
		emitted = append(emitted, ev)
		mu.Unlock()
	})

	d.Submit(RawEvent{Path: "c.go", Kind: WatchModified})
	d.Flush()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, emitted, 1)
	assert.Equal(t, "c.go", emitted[0].Path)
}

func TestEventDebouncer_DistinctPathsEmitIndependently(t *testing.T) {
	var mu sync.Mutex
	emitted := map[string]bool{}
	d := NewEventDebouncer(10*time.Millisecond, func(ev RawEvent) {
		mu.Lock()
		emitted[ev.Path] = true
		mu.Unlock()
	})

	d.Submit(RawEvent{Path: "x.go", Kind: WatchCreated})
	d.Submit(RawEvent{Path: "y.go", Kind: WatchCreated})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(emitted) == 2
	}, time.Second, 5*time.Millisecond)
}
