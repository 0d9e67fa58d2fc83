// Package clock provides the delayed, cancellable callbacks the dispatch
// scheduler runs on.
//
// Two implementations exist:
//   - Real: wall-clock time backed by time.AfterFunc
//   - Manual: simulated time that only moves when Advance is called
//
// Manual is what tests and `orderbot simulate` use to observe exact
// transition times without sleeping.
package clock

import "time"

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer; false means the callback already fired (or is firing)
	// or the timer was stopped before.
	Stop() bool
}

// Clock is the time source used by the scheduler.
type Clock interface {
	Now() time.Time
	// AfterFunc runs fn in its own goroutine (Real) or inside Advance (Manual)
	// once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Real returns a Clock backed by the runtime timer wheel.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
