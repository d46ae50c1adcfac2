// Package exitguard lets tests survive code that tries to end the process.
//
// Go cannot intercept os.Exit, so code under test terminates through
// [Exit], which consults a process-wide [Policy] first. Installing the
// guard with an [Installer] swaps in a [NoExitPolicy], turning every exit
// attempt into an [*ExitSignal] panic that the test can recover, while all
// other permission checks pass through to the previous policy.
package exitguard

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const exitPermissionPrefix = "exitVM."

// Permission names a guarded capability.
type Permission struct {
	Name string
}

func (p Permission) String() string { return p.Name }

// ExitPermission is the permission checked by Exit.
func ExitPermission(status int) Permission {
	return Permission{Name: exitPermissionPrefix + strconv.Itoa(status)}
}

// exitStatus reports whether p is an exit permission, and for which status.
func exitStatus(p Permission) (int, bool) {
	s, ok := strings.CutPrefix(p.Name, exitPermissionPrefix)
	if !ok {
		return 0, false
	}
	status, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return status, true
}

// Policy decides whether a permission is granted. A nil error grants it.
type Policy interface {
	CheckPermission(p Permission) error
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(p Permission) error

func (f PolicyFunc) CheckPermission(p Permission) error { return f(p) }

// DeniedError is a ready-made refusal for policies to return.
type DeniedError struct {
	Permission Permission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("exitguard: permission %q denied", e.Permission.Name)
}

var (
	policyMu sync.RWMutex
	policy   Policy

	// terminate ends the process once an exit is permitted.
	terminate = os.Exit
)

// SetPolicy replaces the process-wide policy. nil grants everything.
func SetPolicy(p Policy) {
	policyMu.Lock()
	defer policyMu.Unlock()
	policy = p
}

// CurrentPolicy returns the process-wide policy, possibly nil.
func CurrentPolicy() Policy {
	policyMu.RLock()
	defer policyMu.RUnlock()
	return policy
}

// CheckPermission asks the current policy about p.
func CheckPermission(p Permission) error {
	return checkPermission(p)
}

// checkPermission is the only path from Exit to the policy; NoExitPolicy
// relies on that when inspecting the call stack.
func checkPermission(p Permission) error {
	current := CurrentPolicy()
	if current == nil {
		return nil
	}
	return current.CheckPermission(p)
}

// Exit terminates the process with status, if the current policy allows
// it. Otherwise it panics with the policy's error, which is an
// [*ExitSignal] while the guard is installed.
func Exit(status int) {
	if err := checkPermission(ExitPermission(status)); err != nil {
		panic(err)
	}
	terminate(status)
}
