package timing

import (
	"sync/atomic"
	"time"

	"code.cloudfoundry.org/clock"
)

// Timeout is a validated wait duration. The zero value is "no timeout given"
// and is rejected by [PauseTimeout].
type Timeout struct {
	duration time.Duration
	set      bool
}

// TimeoutOf returns a Timeout of d. Negative durations are clamped to zero.
func TimeoutOf(d time.Duration) Timeout {
	return Timeout{duration: max(d, 0), set: true}
}

// Duration returns the wait duration.
func (t Timeout) Duration() time.Duration { return t.duration }

// IsZero reports whether t was never set.
func (t Timeout) IsZero() bool { return !t.set }

// TimeoutWatch tracks whether a timeout has elapsed since it was started.
// Once IsTimeOut reports true it keeps doing so.
type TimeoutWatch struct {
	clock   clock.Clock
	start   time.Time
	timeout time.Duration
	expired atomic.Bool
}

// StartWatch starts a watch on the real clock.
func StartWatch(timeout time.Duration) *TimeoutWatch {
	return startWatch(clock.NewClock(), timeout)
}

func startWatch(clk clock.Clock, timeout time.Duration) *TimeoutWatch {
	return &TimeoutWatch{clock: clk, start: clk.Now(), timeout: timeout}
}

// IsTimeOut reports whether the timeout has elapsed.
func (w *TimeoutWatch) IsTimeOut() bool {
	if w.expired.Load() {
		return true
	}
	if w.clock.Since(w.start) >= w.timeout {
		w.expired.Store(true)
		return true
	}
	return false
}

// Elapsed returns the time since the watch started.
func (w *TimeoutWatch) Elapsed() time.Duration {
	return w.clock.Since(w.start)
}

// Timeout returns the duration being watched.
func (w *TimeoutWatch) Timeout() time.Duration { return w.timeout }
