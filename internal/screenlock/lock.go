// Package screenlock serializes GUI tests.
//
// Only one GUI test may drive the screen at a time, even under a parallel
// test runner. Every GUI test acquires the [Lock] before it runs and
// releases it afterward. Ownership is tracked by identity: the same owner
// re-acquiring is a no-op, and only the owner may release.
package screenlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotLocked is the cause of a LockStateError when releasing a lock
	// nobody holds.
	ErrNotLocked = errors.New("no lock to release")

	// ErrNotOwner is the cause of a LockStateError when releasing a lock
	// held by someone else.
	ErrNotOwner = errors.New("not the lock owner")

	// ErrNilOwner is returned (or panicked, by Acquire) for a nil owner.
	ErrNilOwner = errors.New("screenlock: owner must not be nil")
)

// LockStateError reports misuse of a Lock. The lock is unchanged.
type LockStateError struct {
	// Owner is the identity that attempted the operation.
	Owner any
	// Err is ErrNotLocked or ErrNotOwner.
	Err error
}

func (e *LockStateError) Error() string {
	if errors.Is(e.Err, ErrNotOwner) {
		return fmt.Sprintf("screenlock: %v is %v", e.Owner, e.Err)
	}
	return "screenlock: " + e.Err.Error()
}

func (e *LockStateError) Unwrap() error { return e.Err }

// Lock is a mutual-exclusion gate with owner identity. Owners must be
// comparable values; a fresh pointer (e.g. new(struct{ int })) or a
// unique string works well. Waiters are not served in FIFO order.
type Lock struct {
	mu       sync.Mutex
	released *sync.Cond
	owner    any
	acquired bool
	logger   *slog.Logger
}

// Option configures a Lock.
type Option func(*Lock)

// WithLogger sets the logger lock transitions are reported to, at debug
// level.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lock) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns an unlocked Lock.
func New(options ...Option) *Lock {
	l := &Lock{logger: slog.Default()}
	l.released = sync.NewCond(&l.mu)
	for _, opt := range options {
		opt(l)
	}
	return l
}

var defaultLock = sync.OnceValue(func() *Lock { return New() })

// Default returns the process-wide Lock, creating it on first use. Prefer
// passing a Lock explicitly; this exists for default wiring.
func Default() *Lock {
	return defaultLock()
}

// Acquire blocks until the lock is free, then marks it held by owner. It
// returns immediately if owner already holds it. A nil owner panics with
// ErrNilOwner.
func (l *Lock) Acquire(owner any) {
	if owner == nil {
		panic(ErrNilOwner)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.alreadyAcquiredBy(owner) {
		return
	}
	start := time.Now()
	for l.acquired {
		l.released.Wait()
	}
	l.take(owner, start)
}

// AcquireContext is Acquire that gives up when ctx is done, returning
// ctx.Err() and leaving the lock untouched.
func (l *Lock) AcquireContext(ctx context.Context, owner any) error {
	if owner == nil {
		return ErrNilOwner
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.alreadyAcquiredBy(owner) {
		return nil
	}
	start := time.Now()
	for l.acquired {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.released.Wait()
	}
	if err := ctx.Err(); err != nil {
		// we may have consumed the wake-up meant for another waiter
		l.released.Signal()
		return err
	}
	l.take(owner, start)
	return nil
}

// TryAcquire acquires the lock for owner if it is free or already held by
// owner, without blocking.
func (l *Lock) TryAcquire(owner any) bool {
	if owner == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.alreadyAcquiredBy(owner) {
		return true
	}
	if l.acquired {
		return false
	}
	l.take(owner, time.Now())
	return true
}

// Release frees the lock held by owner, letting one blocked acquirer
// proceed. It returns a *LockStateError if the lock is not held, or held by
// a different owner.
func (l *Lock) Release(owner any) error {
	if owner == nil {
		return ErrNilOwner
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.acquired {
		return &LockStateError{Owner: owner, Err: ErrNotLocked}
	}
	if l.owner != owner {
		return &LockStateError{Owner: owner, Err: ErrNotOwner}
	}
	l.acquired = false
	l.owner = nil
	recordRelease()
	l.logger.Debug("screen lock released", "owner", owner)
	l.released.Signal()
	return nil
}

// AcquiredBy reports whether owner currently holds the lock.
func (l *Lock) AcquiredBy(owner any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alreadyAcquiredBy(owner)
}

// Owner returns the current holder, if any.
func (l *Lock) Owner() (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner, l.acquired
}

func (l *Lock) alreadyAcquiredBy(owner any) bool {
	return l.acquired && l.owner == owner
}

// take must be called with mu held and the lock free.
func (l *Lock) take(owner any, waitStart time.Time) {
	l.owner = owner
	l.acquired = true
	waited := time.Since(waitStart)
	recordAcquire(waited)
	l.logger.Debug("screen lock acquired", "owner", owner, "waited", waited)
}
