// Package edt runs work on a toolkit's dispatch goroutine on behalf of code
// running anywhere else, blocking the caller until the outcome is known.
//
// UI state must only be read or written on the dispatch goroutine. Every
// operation that touches it goes through [Execute] or [Run]:
//
//	title, err := edt.Execute(runner, func() (string, error) {
//		return window.Title(), nil
//	})
//
// Errors returned by the work come back unchanged. A panic in the work is
// recovered on the dispatch goroutine and raised again on the caller with
// the same value; use [ExecuteResult] to inspect it instead.
package edt

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

var (
	// ErrNotScheduled wraps a failure to hand work to the dispatcher.
	ErrNotScheduled = errors.New("edt: unable to schedule on dispatch goroutine")

	// ErrNilWork is returned for a nil Query or Task.
	ErrNilWork = errors.New("edt: nil query or task")
)

// Dispatcher is the toolkit surface the runner needs. *toolkit.Toolkit
// satisfies it.
type Dispatcher interface {
	// InvokeLater enqueues fn on the dispatch goroutine.
	InvokeLater(fn func()) error
	// IsDispatchThread reports whether the caller is the dispatch goroutine.
	IsDispatchThread() bool
}

// Query is work producing a value.
type Query[T any] func() (T, error)

// Task is work producing no value.
type Task func() error

// Runner submits work to a Dispatcher. It is safe for concurrent use.
type Runner struct {
	dispatcher Dispatcher
	logger     *slog.Logger

	mu                sync.RWMutex
	executeInDispatch bool
}

// Option configures a Runner.
type Option interface {
	applyOption(*Runner)
}

type optionFunc func(*Runner)

func (f optionFunc) applyOption(r *Runner) { f(r) }

// WithExecuteInDispatchThread sets whether work is sent to the dispatch
// goroutine (the default) or run on the calling goroutine.
func WithExecuteInDispatchThread(b bool) Option {
	return optionFunc(func(r *Runner) {
		r.executeInDispatch = b
	})
}

// WithLogger sets the logger used to report propagated panics.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	})
}

// NewRunner returns a Runner submitting to d.
func NewRunner(d Dispatcher, options ...Option) *Runner {
	if d == nil {
		panic("edt: nil dispatcher")
	}
	r := &Runner{
		dispatcher:        d,
		logger:            slog.Default(),
		executeInDispatch: true,
	}
	for _, opt := range options {
		opt.applyOption(r)
	}
	return r
}

// SetExecuteInDispatchThread toggles dispatching at runtime.
func (r *Runner) SetExecuteInDispatchThread(b bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executeInDispatch = b
}

// ExecuteInDispatchThread reports whether work is sent to the dispatch
// goroutine.
func (r *Runner) ExecuteInDispatchThread() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executeInDispatch
}

// Dispatcher returns the dispatcher work is submitted to.
func (r *Runner) Dispatcher() Dispatcher {
	return r.dispatcher
}

// ExecuteResult runs q on the dispatch goroutine, waits for it, and returns
// its outcome without re-raising panics. On the dispatch goroutine, or with
// dispatching turned off, q runs inline. There is no timeout.
func ExecuteResult[T any](r *Runner, q Query[T]) Result[T] {
	if q == nil {
		return Result[T]{Err: ErrNilWork}
	}
	if !r.ExecuteInDispatchThread() || r.dispatcher.IsDispatchThread() {
		return capture(q)
	}

	ch := make(chan Result[T], 1)
	if err := r.dispatcher.InvokeLater(func() {
		ch <- capture(q)
	}); err != nil {
		return Result[T]{Err: fmt.Errorf("%w: %w", ErrNotScheduled, err)}
	}

	done := dispatcherDone(r.dispatcher)
	select {
	case res := <-ch:
		return res
	case <-done:
		select {
		case res := <-ch:
			return res
		default:
			return Result[T]{Err: fmt.Errorf("%w: dispatcher stopped before completion", ErrNotScheduled)}
		}
	}
}

// Execute runs q on the dispatch goroutine and returns its value and
// error unchanged. A panic in q is raised again here with the same value.
func Execute[T any](r *Runner, q Query[T]) (T, error) {
	res := ExecuteResult(r, q)
	if res.Panic != nil {
		r.logger.Debug("[EDT] re-raising panic from dispatch goroutine", "panic", res.Panic.Value, "stack", string(res.Panic.Stack))
		panic(res.Panic.Value)
	}
	return res.Value, res.Err
}

// Run is Execute for a Task.
func Run(r *Runner, t Task) error {
	if t == nil {
		return ErrNilWork
	}
	_, err := Execute(r, func() (struct{}, error) {
		return struct{}{}, t()
	})
	return err
}

// ExecuteInCurrentThread runs q on the calling goroutine. Callers already
// on the dispatch goroutine use it to skip the round trip.
func ExecuteInCurrentThread[T any](q Query[T]) (T, error) {
	if q == nil {
		var zero T
		return zero, ErrNilWork
	}
	return q()
}

// RunInCurrentThread runs t on the calling goroutine.
func RunInCurrentThread(t Task) error {
	if t == nil {
		return ErrNilWork
	}
	return t()
}

func capture[T any](q Query[T]) (res Result[T]) {
	defer func() {
		if v := recover(); v != nil {
			res = Result[T]{Panic: &PanicError{Value: v, Stack: debug.Stack()}}
		}
	}()
	v, err := q()
	return Result[T]{Value: v, Err: err}
}

// dispatcherDone returns the dispatcher's Done channel if it has one, or
// nil, which blocks forever.
func dispatcherDone(d Dispatcher) <-chan struct{} {
	if s, ok := d.(interface{ Done() <-chan struct{} }); ok {
		return s.Done()
	}
	return nil
}
