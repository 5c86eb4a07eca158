package timex

import (
	"sync"
	"time"
)

// Debouncer runs a task once a burst of triggers for the same key has been
// quiet for the configured delay. Every key owns at most one pending task;
// triggering a key again replaces its task and restarts the window.
type Debouncer struct {
	clock Clock
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*debounced
	gen     uint64
	stopped bool
}

type debounced struct {
	timer Timer
	gen   uint64
}

// NewDebouncer creates a Debouncer. A nil clock means Real.
func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = Real
	}
	return &Debouncer{clock: clock, delay: delay, pending: make(map[string]*debounced)}
}

// Trigger (re)arms the task for key. fn runs on the clock's goroutine, never
// while the Debouncer's lock is held.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	d.gen++
	gen := d.gen

	entry := &debounced{gen: gen}
	entry.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		current, ok := d.pending[key]
		if !ok || current.gen != gen || d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.pending, key)
		d.mu.Unlock()

		fn()
	})
	d.pending[key] = entry
}

// Cancel drops the pending task for key, if any.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[key]; ok {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// CancelAll drops every pending task but keeps the Debouncer usable.
func (d *Debouncer) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Stop cancels every pending task. Later triggers are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether key has a task waiting.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}
