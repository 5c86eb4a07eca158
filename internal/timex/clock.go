package timex

import "time"

// Timer is a cancellable delayed task.
type Timer interface {
	// Stop prevents the task from running. It reports whether the call
	// stopped the task before it fired.
	Stop() bool
}

// Clock abstracts the wall clock so timing-sensitive code can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// Real is the Clock backed by package time.
var Real Clock = realClock{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
