package timing

import (
	"errors"
	"time"
)

var (
	// ErrNilCondition is returned when a condition to wait on is nil.
	ErrNilCondition = errors.New("timing: the condition to verify should not be nil")

	// ErrNilConditions is returned by PauseAll for a nil slice.
	ErrNilConditions = errors.New("timing: the slice of conditions to verify should not be nil")

	// ErrEmptyConditions is returned by PauseAll for an empty slice.
	ErrEmptyConditions = errors.New("timing: the slice of conditions to verify should not be empty")

	// ErrNilTimeout is returned when a zero Timeout value is given.
	ErrNilTimeout = errors.New("timing: the given timeout should not be nil")

	// ErrNilUnit is returned by SleepUnit for a non-positive unit.
	ErrNilUnit = errors.New("timing: time unit cannot be nil")
)

// WaitTimedOutError is returned when a condition is not satisfied in time.
type WaitTimedOutError struct {
	// Description names the unmet condition(s).
	Description string
	// Timeout is the duration that elapsed.
	Timeout time.Duration
}

func (e *WaitTimedOutError) Error() string {
	return "Timed out waiting for " + e.Description
}
