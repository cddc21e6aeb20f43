package watcher

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debouncer batches rapid fsnotify events within a fixed window and
// guarantees the callback never runs concurrently with itself: events
// arriving while a callback is in flight are queued for the next flush.
type Debouncer struct {
	duration time.Duration
	callback func([]fsnotify.Event)

	mu       sync.Mutex
	timer    *time.Timer
	events   []fsnotify.Event
	pending  []fsnotify.Event
	inFlight bool
	stopped  bool
}

// NewDebouncer builds a Debouncer that invokes cb with the accumulated
// batch after d of inactivity.
func NewDebouncer(d time.Duration, cb func([]fsnotify.Event)) *Debouncer {
	return &Debouncer{duration: d, callback: cb}
}

// Add records evt and (re)schedules the flush timer.
func (d *Debouncer) Add(evt fsnotify.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.events = append(d.events, evt)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.duration, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	batch := d.events
	d.events = nil
	if len(batch) == 0 {
		d.mu.Unlock()
		return
	}
	if d.inFlight {
		d.pending = append(d.pending, batch...)
		d.mu.Unlock()
		return
	}
	d.inFlight = true
	d.mu.Unlock()

	d.callback(batch)

	d.mu.Lock()
	d.inFlight = false
	if len(d.pending) > 0 && !d.stopped {
		d.events = d.pending
		d.pending = nil
		d.timer = time.AfterFunc(d.duration, d.flush)
	}
	d.mu.Unlock()
}

// Stop cancels any pending flush and rejects further Add calls, used
// when the watcher is closing so no callback fires after shutdown.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.events = nil
	d.pending = nil
}
