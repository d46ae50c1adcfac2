// Package toolkit models the UI toolkit the synchronization core drives: a
// single privileged dispatch goroutine draining a serial task queue, plus a
// global registry of event listeners filtered by event-category masks.
//
// UI state may only be touched on the dispatch goroutine. Code running
// elsewhere submits work with [Toolkit.InvokeLater] or
// [Toolkit.InvokeAndWait], and can ask [Toolkit.IsDispatchThread].
package toolkit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/go-fest/internal/goroutineid"
)

var (
	// ErrNotRunning is returned when work is submitted to a toolkit that
	// has not been started, or has been closed.
	ErrNotRunning = errors.New("toolkit: dispatch loop not running")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("toolkit: already started")

	// ErrTaskPanicked wraps the value of a panic raised by work run through
	// InvokeAndWait.
	ErrTaskPanicked = errors.New("toolkit: task panicked")
)

// DefaultShutdownTimeout bounds how long Close waits for queued work to
// drain.
const DefaultShutdownTimeout = 5 * time.Second

// Toolkit owns one dispatch goroutine. Create it with [New], then [Toolkit.Start]
// it; [Toolkit.Close] stops it. A Toolkit cannot be restarted.
type Toolkit struct {
	loop     *eventloop.Loop
	logger   *slog.Logger
	dispatch goroutineid.Binding

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	runErr  error

	shutdownTimeout time.Duration

	listenersMu sync.Mutex
	listeners   []Registration
	nextEventID atomic.Uint64
}

// Option configures a Toolkit.
type Option interface {
	applyOption(*Toolkit)
}

type optionFunc func(*Toolkit)

func (f optionFunc) applyOption(t *Toolkit) { f(t) }

// WithLogger sets the logger panics and lifecycle events are reported to.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(t *Toolkit) {
		if logger != nil {
			t.logger = logger
		}
	})
}

// WithShutdownTimeout overrides [DefaultShutdownTimeout].
func WithShutdownTimeout(d time.Duration) Option {
	return optionFunc(func(t *Toolkit) {
		if d > 0 {
			t.shutdownTimeout = d
		}
	})
}

// New creates a stopped Toolkit.
func New(options ...Option) (*Toolkit, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("toolkit: failed to create event loop: %w", err)
	}
	t := &Toolkit{
		loop:            loop,
		logger:          slog.Default(),
		done:            make(chan struct{}),
		shutdownTimeout: DefaultShutdownTimeout,
	}
	for _, opt := range options {
		opt.applyOption(t)
	}
	return t, nil
}

// Start launches the dispatch goroutine and returns once it is processing
// work. When ctx is done the toolkit closes itself.
func (t *Toolkit) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	if t.stopped {
		t.mu.Unlock()
		return ErrNotRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	t.started = true
	t.cancel = cancel
	t.mu.Unlock()

	go func() {
		defer close(t.done)
		err := t.loop.Run(runCtx)
		t.dispatch.Unbind()
		if err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Error("[Toolkit] dispatch loop exited", "error", err)
		}
		t.mu.Lock()
		t.runErr = err
		t.stopped = true
		t.mu.Unlock()
	}()

	// the loop runs tasks on the goroutine that called Run, so the first
	// task tells us which goroutine is privileged
	ready := make(chan struct{})
	if err := t.loop.Submit(func() {
		t.dispatch.Bind()
		close(ready)
	}); err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	select {
	case <-ready:
	case <-t.done:
		return ErrNotRunning
	}

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() {
			_ = t.Close()
		})
	}
	t.logger.Debug("[Toolkit] dispatch loop started", "goroutine", t.dispatch.ID())
	return nil
}

// Close drains queued work, bounded by the shutdown timeout, then stops the
// dispatch goroutine. It is safe to call more than once.
func (t *Toolkit) Close() error {
	t.mu.Lock()
	if t.stopped && !t.started {
		t.mu.Unlock()
		return nil
	}
	wasStarted := t.started
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()

	if !wasStarted {
		close(t.done)
		if err := t.loop.Close(); err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
			return fmt.Errorf("toolkit: close: %w", err)
		}
		return nil
	}

	ctx, stop := context.WithTimeout(context.Background(), t.shutdownTimeout)
	defer stop()
	err := t.loop.Shutdown(ctx)
	cancel()
	<-t.done
	if err != nil && !errors.Is(err, eventloop.ErrLoopTerminated) {
		return fmt.Errorf("toolkit: shutdown: %w", err)
	}
	return nil
}

// Done is closed once the dispatch goroutine has exited.
func (t *Toolkit) Done() <-chan struct{} {
	return t.done
}

// Err returns the error the dispatch loop exited with, if any.
func (t *Toolkit) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.runErr
}

// IsRunning reports whether the toolkit accepts work.
func (t *Toolkit) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.started && !t.stopped
}

// IsDispatchThread reports whether the caller is the dispatch goroutine.
func (t *Toolkit) IsDispatchThread() bool {
	return t.dispatch.IsCurrent()
}

// InvokeLater enqueues fn for execution on the dispatch goroutine. Work
// runs in submission order. A panic in fn is recovered and logged.
func (t *Toolkit) InvokeLater(fn func()) error {
	if fn == nil {
		return errors.New("toolkit: nil task")
	}
	if !t.IsRunning() {
		return ErrNotRunning
	}
	if err := t.loop.Submit(func() { t.runTask(fn) }); err != nil {
		return fmt.Errorf("%w: %w", ErrNotRunning, err)
	}
	recordTaskDispatched()
	return nil
}

// InvokeAndWait runs fn on the dispatch goroutine and waits for it to
// finish. Called on the dispatch goroutine, fn runs inline. A panic in fn
// is returned as an error wrapping [ErrTaskPanicked].
func (t *Toolkit) InvokeAndWait(fn func()) error {
	if fn == nil {
		return errors.New("toolkit: nil task")
	}
	if t.IsDispatchThread() {
		return catch(fn)
	}
	errCh := make(chan error, 1)
	if err := t.InvokeLater(func() {
		errCh <- catch(fn)
	}); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-t.done:
		// the task may have completed just before the loop exited
		select {
		case err := <-errCh:
			return err
		default:
			return fmt.Errorf("%w: stopped before completion", ErrNotRunning)
		}
	}
}

func catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	fn()
	return nil
}

func (t *Toolkit) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("[Toolkit] panic in dispatched task", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
