package timing

import (
	"context"
	"log/slog"
	"time"

	"code.cloudfoundry.org/clock"
)

const (
	// DefaultTimeout is used by the waits that take no explicit timeout.
	DefaultTimeout = 30 * time.Second

	// SleepInterval is the delay between two evaluations of a condition.
	SleepInterval = 10 * time.Millisecond
)

// Pauser waits on conditions. The zero value is not usable; see [NewPauser].
// A Pauser is safe for concurrent use.
type Pauser struct {
	clock    clock.Clock
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// Option configures a [Pauser].
type Option interface {
	applyOption(*Pauser)
}

type optionFunc func(*Pauser)

func (f optionFunc) applyOption(p *Pauser) { f(p) }

// WithClock replaces the real clock, e.g. with a fake one in tests.
func WithClock(clk clock.Clock) Option {
	return optionFunc(func(p *Pauser) {
		if clk != nil {
			p.clock = clk
		}
	})
}

// WithInterval sets the delay between evaluations. Non-positive values are
// ignored.
func WithInterval(d time.Duration) Option {
	return optionFunc(func(p *Pauser) {
		if d > 0 {
			p.interval = d
		}
	})
}

// WithDefaultTimeout sets the timeout used by [Pauser.Pause] and
// [Pauser.PauseAllDefault]. Non-positive values are ignored.
func WithDefaultTimeout(d time.Duration) Option {
	return optionFunc(func(p *Pauser) {
		if d > 0 {
			p.timeout = d
		}
	})
}

// WithLogger sets the logger timeouts are reported to.
func WithLogger(logger *slog.Logger) Option {
	return optionFunc(func(p *Pauser) {
		if logger != nil {
			p.logger = logger
		}
	})
}

// NewPauser returns a Pauser using the real clock, [SleepInterval] and
// [DefaultTimeout] unless overridden.
func NewPauser(options ...Option) *Pauser {
	p := &Pauser{
		clock:    clock.NewClock(),
		interval: SleepInterval,
		timeout:  DefaultTimeout,
	}
	for _, opt := range options {
		opt.applyOption(p)
	}
	return p
}

// Interval returns the delay between evaluations.
func (p *Pauser) Interval() time.Duration { return p.interval }

// DefaultTimeout returns the timeout used when none is given.
func (p *Pauser) DefaultTimeout() time.Duration { return p.timeout }

// StartWatch starts a [TimeoutWatch] on this Pauser's clock.
func (p *Pauser) StartWatch(timeout time.Duration) *TimeoutWatch {
	return startWatch(p.clock, timeout)
}

// Pause waits for condition using the default timeout.
func (p *Pauser) Pause(condition Condition) error {
	return p.PauseFor(condition, p.timeout)
}

// PauseFor waits until condition is satisfied, or returns a
// [*WaitTimedOutError] once timeout has elapsed.
func (p *Pauser) PauseFor(condition Condition, timeout time.Duration) error {
	return p.PauseContext(context.Background(), condition, timeout)
}

// PauseTimeout is PauseFor taking a [Timeout].
func (p *Pauser) PauseTimeout(condition Condition, timeout Timeout) error {
	if timeout.IsZero() {
		return ErrNilTimeout
	}
	return p.PauseFor(condition, timeout.Duration())
}

// PauseContext is PauseFor that also gives up, returning ctx.Err(), when ctx
// is done. The condition's Done hook runs in every case.
func (p *Pauser) PauseContext(ctx context.Context, condition Condition, timeout time.Duration) error {
	if isNil(condition) {
		return ErrNilCondition
	}
	return p.wait(ctx, timeout, condition.Test, func() { done(condition) }, condition.String)
}

// PauseAllDefault waits for conditions using the default timeout.
func (p *Pauser) PauseAllDefault(conditions []Condition) error {
	return p.PauseAll(conditions, p.timeout)
}

// PauseAll waits until every condition is satisfied during the same pass.
// The timeout is shared by all conditions. Invalid slices are rejected
// before any waiting.
func (p *Pauser) PauseAll(conditions []Condition, timeout time.Duration) error {
	if err := validate(conditions); err != nil {
		return err
	}
	return p.wait(
		context.Background(),
		timeout,
		func() bool { return satisfied(conditions) },
		func() {
			for _, c := range conditions {
				done(c)
			}
		},
		func() string { return describe(conditions) },
	)
}

func (p *Pauser) wait(ctx context.Context, timeout time.Duration, test func() bool, cleanup func(), description func() string) error {
	defer cleanup()
	watch := p.StartWatch(timeout)
	for !test() {
		if watch.IsTimeOut() {
			// one last look, the condition may have changed while the
			// clock was read
			if test() {
				return nil
			}
			err := &WaitTimedOutError{Description: description(), Timeout: timeout}
			if p.logger != nil {
				p.logger.Debug("wait timed out", "condition", err.Description, "timeout", timeout, "elapsed", watch.Elapsed())
			}
			return err
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pauser) sleep(ctx context.Context, d time.Duration) error {
	if ctx.Done() == nil {
		p.clock.Sleep(d)
		return nil
	}
	timer := p.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

// Sleep sleeps for d on this Pauser's clock.
func (p *Pauser) Sleep(d time.Duration) {
	p.clock.Sleep(d)
}

// Await polls getter until predicate accepts its value, returning that
// value. On timeout it returns the zero value and a [*WaitTimedOutError].
func Await[T any](ctx context.Context, p *Pauser, description string, getter func() T, predicate func(T) bool, timeout time.Duration) (T, error) {
	var last T
	err := p.PauseContext(ctx, NewCondition(description, func() bool {
		last = getter()
		return predicate(last)
	}), timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	return last, nil
}

var defaultPauser = NewPauser()

// Default returns the Pauser used by the package-level functions.
func Default() *Pauser { return defaultPauser }

// Pause waits for condition for up to [DefaultTimeout].
func Pause(condition Condition) error { return defaultPauser.Pause(condition) }

// PauseFor waits for condition for up to timeout.
func PauseFor(condition Condition, timeout time.Duration) error {
	return defaultPauser.PauseFor(condition, timeout)
}

// PauseTimeout waits for condition for up to timeout.
func PauseTimeout(condition Condition, timeout Timeout) error {
	return defaultPauser.PauseTimeout(condition, timeout)
}

// PauseContext waits for condition for up to timeout, or until ctx is done.
func PauseContext(ctx context.Context, condition Condition, timeout time.Duration) error {
	return defaultPauser.PauseContext(ctx, condition, timeout)
}

// PauseAll waits for all conditions for up to timeout.
func PauseAll(conditions []Condition, timeout time.Duration) error {
	return defaultPauser.PauseAll(conditions, timeout)
}

// PauseAllDefault waits for all conditions for up to [DefaultTimeout].
func PauseAllDefault(conditions []Condition) error {
	return defaultPauser.PauseAllDefault(conditions)
}

// Sleep sleeps for d. Go has no goroutine interrupts, so there is nothing to
// swallow or restore.
func Sleep(d time.Duration) { time.Sleep(d) }

// SleepUnit sleeps for n units.
func SleepUnit(n int64, unit time.Duration) error {
	if unit <= 0 {
		return ErrNilUnit
	}
	Sleep(time.Duration(n) * unit)
	return nil
}

// SleepBriefly sleeps for [SleepInterval].
func SleepBriefly() { Sleep(SleepInterval) }
