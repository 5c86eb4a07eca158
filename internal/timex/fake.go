package timex

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. Tasks scheduled with AfterFunc run
// synchronously inside Advance, in due-time order, on the caller's goroutine.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*fakeTimer
}

type fakeTimer struct {
	clock *FakeClock
	when  time.Time
	seq   int
	fn    func()
	done  bool
}

// NewFakeClock returns a FakeClock set to start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{clock: c, when: c.now.Add(d), seq: c.seq, fn: f}
	c.tasks = append(c.tasks, t)
	return t
}

// Advance moves the clock forward by d and runs every task that became due.
// Tasks scheduled by running tasks are honoured if they fall inside the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.popDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = next.when
		c.mu.Unlock()

		next.fn()
	}
}

// Pending returns the number of scheduled tasks that have not fired or been
// stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

func (c *FakeClock) popDueLocked(target time.Time) *fakeTimer {
	if len(c.tasks) == 0 {
		return nil
	}
	sort.SliceStable(c.tasks, func(i, j int) bool {
		if c.tasks[i].when.Equal(c.tasks[j].when) {
			return c.tasks[i].seq < c.tasks[j].seq
		}
		return c.tasks[i].when.Before(c.tasks[j].when)
	})
	first := c.tasks[0]
	if first.when.After(target) {
		return nil
	}
	c.tasks = c.tasks[1:]
	first.done = true
	return first
}

func (t *fakeTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	for i, task := range c.tasks {
		if task == t {
			c.tasks = append(c.tasks[:i], c.tasks[i+1:]...)
			break
		}
	}
	return true
}
