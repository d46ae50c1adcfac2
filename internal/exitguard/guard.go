package exitguard

import (
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"strings"
	"sync"
)

// ExitSignal is raised, as a panic value, in place of a trapped exit.
type ExitSignal struct {
	Status int
}

func (e *ExitSignal) Error() string {
	return fmt.Sprintf("exitguard: application tried to terminate the process with status %d", e.Status)
}

// ExitCallHook is notified of each trapped exit attempt, before the
// ExitSignal is raised.
type ExitCallHook interface {
	ExitCalled(status int)
}

// ExitCallHookFunc adapts a function to ExitCallHook.
type ExitCallHookFunc func(status int)

func (f ExitCallHookFunc) ExitCalled(status int) { f(status) }

// NoExitPolicy traps exit attempts made through Exit and delegates every
// other check to the policy it wraps.
type NoExitPolicy struct {
	hook     ExitCallHook
	previous Policy
}

// NewNoExitPolicy returns a NoExitPolicy. Both arguments may be nil.
func NewNoExitPolicy(hook ExitCallHook, previous Policy) *NoExitPolicy {
	return &NoExitPolicy{hook: hook, previous: previous}
}

// Previous returns the wrapped policy.
func (p *NoExitPolicy) Previous() Policy { return p.previous }

// CheckPermission implements Policy. An exit permission requested by Exit
// itself notifies the hook and is refused with an *ExitSignal.
func (p *NoExitPolicy) CheckPermission(perm Permission) error {
	if status, ok := exitStatus(perm); ok && requestedByExit() {
		if p.hook != nil {
			p.hook.ExitCalled(status)
		}
		return &ExitSignal{Status: status}
	}
	if p.previous != nil {
		return p.previous.CheckPermission(perm)
	}
	return nil
}

var exitFuncName, checkPermissionFuncName = func() (string, string) {
	name := runtime.FuncForPC(reflect.ValueOf(Exit).Pointer()).Name()
	pkg := strings.TrimSuffix(name, ".Exit")
	return name, pkg + ".checkPermission"
}()

// requestedByExit walks the stack to the policy dispatch frame and reports
// whether Exit called it.
func requestedByExit() bool {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function == checkPermissionFuncName {
			if !more {
				return false
			}
			caller, _ := frames.Next()
			return caller.Function == exitFuncName
		}
		if !more {
			return false
		}
	}
}

// Installer installs and removes the guard. Install and Uninstall must be
// paired: installing twice without uninstalling captures the first guard as
// the policy to restore.
type Installer struct {
	mu        sync.Mutex
	installed bool
	previous  Policy
}

// Install captures the current policy and replaces it with a NoExitPolicy
// notifying hook, which may be nil.
func (i *Installer) Install(hook ExitCallHook) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.previous = CurrentPolicy()
	SetPolicy(NewNoExitPolicy(hook, i.previous))
	i.installed = true
	slog.Debug("[ExitGuard] installed", "previous", fmt.Sprintf("%T", i.previous))
}

// Uninstall restores the policy captured by Install. It is a no-op if the
// guard is not installed.
func (i *Installer) Uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.installed {
		return
	}
	SetPolicy(i.previous)
	i.previous = nil
	i.installed = false
	slog.Debug("[ExitGuard] uninstalled")
}

// Installed reports whether Install has been called without a matching
// Uninstall.
func (i *Installer) Installed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.installed
}

// Trap runs fn, recovering a trapped exit. Any other panic propagates.
func Trap(fn func()) (status int, trapped bool) {
	defer func() {
		if r := recover(); r != nil {
			sig, ok := r.(*ExitSignal)
			if !ok {
				panic(r)
			}
			status, trapped = sig.Status, true
		}
	}()
	fn()
	return 0, false
}
