package listener

import (
	"log/slog"
	"sync"
	"unicode"

	"github.com/joeycumines/go-fest/internal/toolkit"
)

// KeyCombination is a key pressed while exactly Modifiers are held.
type KeyCombination struct {
	Key       rune
	Modifiers toolkit.Modifiers
}

// DefaultAbortCombination is Ctrl+Shift+A.
var DefaultAbortCombination = KeyCombination{Key: 'A', Modifiers: toolkit.CtrlDown | toolkit.ShiftDown}

// Matches reports whether ev presses this combination.
func (k KeyCombination) Matches(ev toolkit.Event) bool {
	return ev.Kind == toolkit.KeyEvent &&
		ev.KeyAction == toolkit.KeyPressed &&
		unicode.ToUpper(ev.Key) == unicode.ToUpper(k.Key) &&
		ev.Modifiers == k.Modifiers
}

// ListingRegistry is a Registry that can list its registrations.
// *toolkit.Toolkit satisfies it.
type ListingRegistry interface {
	Registry
	Listeners() []toolkit.Registration
}

// EmergencyAbort watches the key events of a toolkit for a combination
// that aborts the running GUI test. It lets a person at the machine stop a
// test that is driving the real keyboard and mouse.
type EmergencyAbort struct {
	registry ListingRegistry
	abort    func()
	logger   *slog.Logger

	mu    sync.Mutex
	combo KeyCombination
}

// RegisterEmergencyAbort attaches a new EmergencyAbort to r, replacing
// any registered earlier, and calls abort each time the combination is
// pressed. The combination starts as [DefaultAbortCombination].
func RegisterEmergencyAbort(r ListingRegistry, abort func(), logger *slog.Logger) *EmergencyAbort {
	if logger == nil {
		logger = slog.Default()
	}
	a := &EmergencyAbort{registry: r, abort: abort, logger: logger, combo: DefaultAbortCombination}
	for _, reg := range r.Listeners() {
		if prev, ok := reg.Listener.(*EmergencyAbort); ok {
			r.RemoveEventListener(prev)
		}
	}
	r.AddEventListener(a, toolkit.KeyEvents)
	return a
}

// SetKeyCombination changes the combination that aborts. A combination
// without a key is ignored.
func (a *EmergencyAbort) SetKeyCombination(k KeyCombination) *EmergencyAbort {
	if k.Key == 0 {
		return a
	}
	a.mu.Lock()
	a.combo = k
	a.mu.Unlock()
	return a
}

// KeyCombination returns the combination that aborts.
func (a *EmergencyAbort) KeyCombination() KeyCombination {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.combo
}

// Unregister removes a from its toolkit.
func (a *EmergencyAbort) Unregister() {
	a.registry.RemoveEventListener(a)
}

// EventDispatched implements toolkit.EventListener.
func (a *EmergencyAbort) EventDispatched(ev toolkit.Event) {
	if !a.KeyCombination().Matches(ev) {
		return
	}
	a.logger.Warn("[Listener] emergency abort requested", "event", ev)
	a.abort()
}
