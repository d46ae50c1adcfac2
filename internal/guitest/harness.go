// Package guitest ties the synchronization core to the lifetime of a test.
//
// A test calls [Setup] first. Setup holds the screen lock until the test
// ends, so GUI tests run one at a time even across parallel packages
// sharing a lock. It also starts a fresh toolkit with a runner bound to it,
// and traps exit attempts made by the code under test:
//
//	func TestLogin(t *testing.T) {
//		h := guitest.Setup(t)
//		title := guitest.Query(h, func() (string, error) { return window.Title(), nil })
//		...
//	}
package guitest

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-fest/internal/config"
	"github.com/joeycumines/go-fest/internal/edt"
	"github.com/joeycumines/go-fest/internal/exitguard"
	"github.com/joeycumines/go-fest/internal/listener"
	"github.com/joeycumines/go-fest/internal/logging"
	"github.com/joeycumines/go-fest/internal/screenlock"
	"github.com/joeycumines/go-fest/internal/timing"
	"github.com/joeycumines/go-fest/internal/toolkit"
)

// failureLogTail is how many recorded log lines are replayed when a test
// fails.
const failureLogTail = 50

// ErrAborted is the cause of a harness context ended by the emergency key
// combination.
var ErrAborted = errors.New("guitest: aborted by the emergency key combination")

// Harness is the per-test state created by [Setup].
type Harness struct {
	tb       testing.TB
	owner    string
	settings config.Settings
	lock     *screenlock.Lock
	toolkit  *toolkit.Toolkit
	runner   *edt.Runner
	pauser   *timing.Pauser
	logger   *slog.Logger
	logs     *logging.Recorder
	ctx      context.Context
	cancel   context.CancelCauseFunc

	exitsMu sync.Mutex
	exits   []int
}

type options struct {
	lock      *screenlock.Lock
	config    *config.Config
	logger    *slog.Logger
	exitHook  exitguard.ExitCallHook
	exitGuard *bool
	abort     *listener.KeyCombination
}

// Option configures [Setup].
type Option interface {
	applyOption(*options)
}

type optionFunc func(*options)

func (f optionFunc) applyOption(o *options) { f(o) }

// WithLock serializes on lock instead of [screenlock.Default].
func WithLock(lock *screenlock.Lock) Option {
	return optionFunc(func(o *options) {
		if lock != nil {
			o.lock = lock
		}
	})
}

// WithConfig resolves settings from c (plus the environment) instead of
// schema defaults.
func WithConfig(c *config.Config) Option {
	return optionFunc(func(o *options) { o.config = c })
}

// WithLogger sends all logs to logger. By default they are kept in memory
// and replayed only if the test fails.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(o *options) { o.logger = logger })
}

// WithExitGuard installs the exit guard regardless of configuration. hook,
// if not nil, is notified of each trapped exit.
func WithExitGuard(hook exitguard.ExitCallHook) Option {
	return optionFunc(func(o *options) {
		enabled := true
		o.exitHook = hook
		o.exitGuard = &enabled
	})
}

// WithoutExitGuard leaves the exit policy alone regardless of configuration.
func WithoutExitGuard() Option {
	return optionFunc(func(o *options) {
		enabled := false
		o.exitHook = nil
		o.exitGuard = &enabled
	})
}

// WithEmergencyAbort lets a person at the machine abort the test by
// pressing combo, e.g. [listener.DefaultAbortCombination]. An abort fails
// the test and ends [Harness.Context], which stops any pause in progress.
func WithEmergencyAbort(combo listener.KeyCombination) Option {
	return optionFunc(func(o *options) { o.abort = &combo })
}

// Setup prepares the calling test. Resources are released through
// tb.Cleanup in reverse order: the toolkit is closed, the exit guard
// uninstalled, then the screen lock released if this harness still holds
// it. Setup fails the test if settings are invalid, the lock cannot be
// acquired within lock.acquire-timeout, or the toolkit does not start.
func Setup(tb testing.TB, opts ...Option) *Harness {
	tb.Helper()

	o := options{lock: screenlock.Default()}
	for _, opt := range opts {
		opt.applyOption(&o)
	}

	settings, err := config.Resolve(o.config)
	if err != nil {
		tb.Fatalf("guitest: invalid settings: %v", err)
	}

	h := &Harness{
		tb:       tb,
		owner:    tb.Name() + "/" + uuid.NewString(),
		settings: settings,
		lock:     o.lock,
		logger:   o.logger,
	}
	if h.logger == nil {
		h.logs = logging.NewRecorder(0, nil)
		h.logger = h.logs.Logger()
	}
	h.logger = h.logger.With("owner", h.owner)
	h.ctx, h.cancel = context.WithCancelCause(context.Background())
	tb.Cleanup(func() { h.cancel(nil) })

	h.acquire()
	tb.Cleanup(h.release)

	guard := settings.ExitGuardEnabled
	if o.exitGuard != nil {
		guard = *o.exitGuard
	}
	if guard {
		var installer exitguard.Installer
		installer.Install(exitguard.ExitCallHookFunc(func(status int) {
			h.exitsMu.Lock()
			h.exits = append(h.exits, status)
			h.exitsMu.Unlock()
			h.logger.Info("[Harness] exit trapped", "status", status)
			if o.exitHook != nil {
				o.exitHook.ExitCalled(status)
			}
		}))
		tb.Cleanup(installer.Uninstall)
	}

	h.toolkit, err = toolkit.New(toolkit.WithLogger(h.logger))
	if err != nil {
		tb.Fatalf("guitest: creating toolkit: %v", err)
	}
	if err := h.toolkit.Start(context.Background()); err != nil {
		_ = h.toolkit.Close()
		tb.Fatalf("guitest: starting toolkit: %v", err)
	}
	tb.Cleanup(func() {
		if err := h.toolkit.Close(); err != nil {
			h.logger.Warn("[Harness] closing toolkit", "error", err)
		}
	})

	if o.abort != nil {
		abort := listener.RegisterEmergencyAbort(h.toolkit, h.abortTest, h.logger).SetKeyCombination(*o.abort)
		tb.Cleanup(abort.Unregister)
	}

	h.runner = edt.NewRunner(h.toolkit, edt.WithLogger(h.logger))
	h.pauser = timing.NewPauser(
		timing.WithDefaultTimeout(settings.PauseTimeout),
		timing.WithInterval(settings.PauseInterval),
		timing.WithLogger(h.logger),
	)

	if h.logs != nil {
		tb.Cleanup(h.replayLogsOnFailure)
	}
	return h
}

func (h *Harness) acquire() {
	h.tb.Helper()
	timeout := h.settings.LockAcquireTimeout
	if timeout <= 0 {
		h.lock.Acquire(h.owner)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := h.lock.AcquireContext(ctx, h.owner); err != nil {
		holder, _ := h.lock.Owner()
		h.tb.Fatalf("guitest: screen lock not acquired within %v (held by %v): %v", timeout, holder, err)
	}
}

// abortTest runs on whichever goroutine dispatched the key event, so it
// must not end the test goroutine itself.
func (h *Harness) abortTest() {
	if h.ctx.Err() != nil {
		return
	}
	h.tb.Errorf("%v", ErrAborted)
	h.cancel(ErrAborted)
}

// release gives the lock back only if it is still ours, so a test that
// released it early does not fail in cleanup.
func (h *Harness) release() {
	if !h.lock.AcquiredBy(h.owner) {
		return
	}
	if err := h.lock.Release(h.owner); err != nil {
		h.tb.Errorf("guitest: releasing screen lock: %v", err)
	}
}

func (h *Harness) replayLogsOnFailure() {
	if !h.tb.Failed() {
		return
	}
	for _, e := range h.logs.Recent(failureLogTail) {
		h.tb.Logf("%s", e)
	}
}

// Owner returns the identity this harness holds the screen lock under.
func (h *Harness) Owner() string { return h.owner }

// Settings returns the settings resolved when the harness was set up.
func (h *Harness) Settings() config.Settings { return h.settings }

// Lock returns the screen lock held for the duration of the test.
func (h *Harness) Lock() *screenlock.Lock { return h.lock }

// Toolkit returns the running toolkit. It is closed during cleanup.
func (h *Harness) Toolkit() *toolkit.Toolkit { return h.toolkit }

// Runner returns the bridge onto the toolkit's dispatch goroutine.
func (h *Harness) Runner() *edt.Runner { return h.runner }

// Pauser returns the pauser configured from pause.timeout and
// pause.interval.
func (h *Harness) Pauser() *timing.Pauser { return h.pauser }

// Logger returns the logger handed to every component of the harness.
func (h *Harness) Logger() *slog.Logger { return h.logger }

// Logs returns the in-memory log, or nil if [WithLogger] was used.
func (h *Harness) Logs() *logging.Recorder { return h.logs }

// Context is done once the test is aborted or has finished.
// context.Cause reports [ErrAborted] after an emergency abort.
func (h *Harness) Context() context.Context { return h.ctx }

// Pause waits for condition using the configured pause.timeout. An
// emergency abort ends the wait with [ErrAborted].
func (h *Harness) Pause(condition timing.Condition) error {
	return h.pause(condition, h.pauser.DefaultTimeout())
}

// PauseFor waits for condition for up to the given timeout.
func (h *Harness) PauseFor(condition timing.Condition, timeout timing.Timeout) error {
	if timeout.IsZero() {
		return timing.ErrNilTimeout
	}
	return h.pause(condition, timeout.Duration())
}

func (h *Harness) pause(condition timing.Condition, timeout time.Duration) error {
	err := h.pauser.PauseContext(h.ctx, condition, timeout)
	if err != nil && h.ctx.Err() != nil {
		return context.Cause(h.ctx)
	}
	return err
}

// ExitStatuses returns the status of every exit trapped so far, in order.
func (h *Harness) ExitStatuses() []int {
	h.exitsMu.Lock()
	defer h.exitsMu.Unlock()
	return slices.Clone(h.exits)
}

// Trap runs fn, reporting the status of an exit it attempted.
func (h *Harness) Trap(fn func()) (status int, trapped bool) {
	return exitguard.Trap(fn)
}

// Query runs q on the dispatch goroutine, failing the test if it returns an
// error. Panics raised by q propagate unchanged.
func Query[T any](h *Harness, q edt.Query[T]) T {
	h.tb.Helper()
	v, err := edt.Execute(h.runner, q)
	if err != nil {
		h.tb.Fatalf("guitest: query failed: %v", err)
	}
	return v
}

// Do runs fn on the dispatch goroutine, failing the test if it returns an
// error.
func Do(h *Harness, fn edt.Task) {
	h.tb.Helper()
	if err := edt.Run(h.runner, fn); err != nil {
		h.tb.Fatalf("guitest: task failed: %v", err)
	}
}
