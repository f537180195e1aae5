package bootstrap

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher_FlushesOnWindowElapse(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]string
	b := NewBatcher(10*time.Millisecond, func(paths []string) {
		mu.Lock()
		flushed = append(flushed, paths)
		mu.Unlock()
	})

	b.Add("a.go")
	b.Add("b.go")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(flushed) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a.go", "b.go"}, flushed[0])
}

func TestBatcher_Stop_FlushesPendingAndRejectsFurtherAdds(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]string
	b := NewBatcher(time.Hour, func(paths []string) {
		mu.Lock()
		flushed = append(flushed, paths)
		mu.Unlock()
	})

	b.Add("a.go")
	b.Stop()

	mu.Lock()
	require.Len(t, flushed, 1)
	assert.Equal(t, []string{"a.go"}, flushed[0])
	mu.Unlock()

	b.Add("b.go")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, flushed, 1, "Add after Stop must not trigger another flush")
}

func TestBatcher_Stop_NoopWhenNothingPending(t *testing.T) {
	b := NewBatcher(time.Hour, func(paths []string) {
		t.Fatal("flushFn should not be called when nothing is pending")
	})
	assert.NotPanics(t, func() { b.Stop() })
}
