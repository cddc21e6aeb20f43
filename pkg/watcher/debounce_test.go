package watcher

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
)

func TestDebouncer_BatchesRapidEvents(t *testing.T) {
	var mu sync.Mutex
	var batches [][]fsnotify.Event

	d := NewDebouncer(20*time.Millisecond, func(evts []fsnotify.Event) {
		mu.Lock()
		batches = append(batches, evts)
		mu.Unlock()
	})

	d.Add(fsnotify.Event{Name: "a.ts", Op: fsnotify.Write})
	d.Add(fsnotify.Event{Name: "a.ts", Op: fsnotify.Write})
	d.Add(fsnotify.Event{Name: "a.ts", Op: fsnotify.Write})

	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, batches, 1, "three rapid events within the window must flush as a single batch")
	assert.Len(t, batches[0], 3)
}

func TestDebouncer_StopPreventsFurtherCallbacks(t *testing.T) {
	var fired int32
	d := NewDebouncer(10*time.Millisecond, func(evts []fsnotify.Event) {
		atomic.AddInt32(&fired, 1)
	})

	d.Add(fsnotify.Event{Name: "a.ts"})
	d.Stop()

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "Stop must cancel the pending flush")
}

func TestDebouncer_QueuesEventsArrivingDuringCallback(t *testing.T) {
	var mu sync.Mutex
	var batchSizes []int
	release := make(chan struct{})

	d := NewDebouncer(10*time.Millisecond, func(evts []fsnotify.Event) {
		mu.Lock()
		batchSizes = append(batchSizes, len(evts))
		mu.Unlock()
		<-release
	})

	d.Add(fsnotify.Event{Name: "a.ts"})
	time.Sleep(25 * time.Millisecond) // first flush is now blocked inside callback

	d.Add(fsnotify.Event{Name: "b.ts"})
	time.Sleep(25 * time.Millisecond)

	close(release)
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, batchSizes, 2, "an event arriving mid-callback must be queued for a second flush, not dropped")
}

func TestIsWatchedFile_FiltersToCompilableExtensions(t *testing.T) {
	w := &Watcher{}
	assert.True(t, w.isWatchedFile("a.ts"))
	assert.True(t, w.isWatchedFile("a.sfc"))
	assert.True(t, w.isWatchedFile("a.vue"))
	assert.True(t, w.isWatchedFile("a.js"))
	assert.False(t, w.isWatchedFile("a.png"))
	assert.False(t, w.isWatchedFile("readme.md"))
}
