package edt

import (
	"fmt"
)

// PanicError carries a panic recovered on the dispatch goroutine.
type PanicError struct {
	// Value is exactly what was passed to panic.
	Value any
	// Stack is the dispatch goroutine's stack at the point of the panic.
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("edt: panic on dispatch goroutine: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Result is the outcome of a unit of work: a value, an error, or a
// recovered panic. At most one of Err and Panic is set.
type Result[T any] struct {
	Value T
	Err   error
	Panic *PanicError
}

// Get returns the value and error, reporting a panic as a *PanicError.
func (r Result[T]) Get() (T, error) {
	if r.Panic != nil {
		var zero T
		return zero, r.Panic
	}
	return r.Value, r.Err
}

// MustGet returns the value. It re-panics with the original panic value,
// or panics with Err.
func (r Result[T]) MustGet() T {
	if r.Panic != nil {
		panic(r.Panic.Value)
	}
	if r.Err != nil {
		panic(r.Err)
	}
	return r.Value
}

// OK reports whether the work completed without error or panic.
func (r Result[T]) OK() bool {
	return r.Err == nil && r.Panic == nil
}
