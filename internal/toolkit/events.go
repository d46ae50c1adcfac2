package toolkit

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"
)

// EventKind is the category of an Event.
type EventKind uint8

const (
	KeyEvent EventKind = iota + 1
	MouseEvent
	FocusEvent
	WindowEvent
	HierarchyEvent
	ComponentEvent
)

var kindNames = [...]string{
	KeyEvent:       "key",
	MouseEvent:     "mouse",
	FocusEvent:     "focus",
	WindowEvent:    "window",
	HierarchyEvent: "hierarchy",
	ComponentEvent: "component",
}

func (k EventKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// Mask returns the EventMask selecting only this kind.
func (k EventKind) Mask() EventMask {
	if k == 0 || int(k) >= len(kindNames) {
		return 0
	}
	return 1 << (k - 1)
}

// EventMask selects event categories.
type EventMask uint32

const (
	KeyEvents       = EventMask(1 << (KeyEvent - 1))
	MouseEvents     = EventMask(1 << (MouseEvent - 1))
	FocusEvents     = EventMask(1 << (FocusEvent - 1))
	WindowEvents    = EventMask(1 << (WindowEvent - 1))
	HierarchyEvents = EventMask(1 << (HierarchyEvent - 1))
	ComponentEvents = EventMask(1 << (ComponentEvent - 1))

	AllEvents = KeyEvents | MouseEvents | FocusEvents | WindowEvents | HierarchyEvents | ComponentEvents
)

// Covers reports whether events of kind k pass the mask.
func (m EventMask) Covers(k EventKind) bool {
	km := k.Mask()
	return km != 0 && m&km != 0
}

// Includes reports whether every category in other is also in m.
func (m EventMask) Includes(other EventMask) bool {
	return m&other == other
}

func (m EventMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for k := KeyEvent; int(k) < len(kindNames); k++ {
		if m&k.Mask() != 0 {
			parts = append(parts, k.String())
		}
	}
	return strings.Join(parts, "|")
}

// KeyAction distinguishes the key events of one keystroke.
type KeyAction uint8

const (
	KeyPressed KeyAction = iota + 1
	KeyReleased
	KeyTyped
)

// Modifiers is the set of modifier keys held during a key event.
type Modifiers uint8

const (
	ShiftDown Modifiers = 1 << iota
	CtrlDown
	AltDown
	MetaDown
)

// Event is a native UI event.
type Event struct {
	// ID is assigned by the toolkit when zero, increasing per toolkit.
	ID     uint64
	Kind   EventKind
	Source any
	// When defaults to the time of dispatch.
	When time.Time

	// Key, KeyAction and Modifiers are set for key events only. Key is
	// the upper-case key, e.g. 'A' for both a and A.
	Key       rune
	KeyAction KeyAction
	Modifiers Modifiers
}

func (e Event) String() string {
	return fmt.Sprintf("%s event #%d from %v", e.Kind, e.ID, e.Source)
}

// EventListener observes events dispatched by a Toolkit. Implementations
// must be comparable, since registrations are keyed by identity.
type EventListener interface {
	EventDispatched(Event)
}

// Registration is one listener and the mask it was registered under.
type Registration struct {
	Listener EventListener
	Mask     EventMask
}

// AddEventListener registers l for events matching mask. Registering a
// listener that is already present widens its mask. A nil listener or an
// empty mask is ignored.
func (t *Toolkit) AddEventListener(l EventListener, mask EventMask) {
	if l == nil || mask&AllEvents == 0 {
		return
	}
	mask &= AllEvents
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for i := range t.listeners {
		if t.listeners[i].Listener == l {
			if t.listeners[i].Mask|mask == t.listeners[i].Mask {
				return
			}
			// copy-on-write, as in RemoveEventListener
			next := slices.Clone(t.listeners)
			next[i].Mask |= mask
			t.listeners = next
			return
		}
	}
	t.listeners = append(t.listeners, Registration{Listener: l, Mask: mask})
}

// RemoveEventListener unregisters l. It is a no-op if l is not registered.
func (t *Toolkit) RemoveEventListener(l EventListener) {
	if l == nil {
		return
	}
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for i := range t.listeners {
		if t.listeners[i].Listener == l {
			// copy-on-write, so snapshots held by DispatchEvent stay valid
			next := make([]Registration, 0, len(t.listeners)-1)
			next = append(next, t.listeners[:i]...)
			t.listeners = append(next, t.listeners[i+1:]...)
			return
		}
	}
}

// Contains reports whether l is registered for every category in mask.
func (t *Toolkit) Contains(l EventListener, mask EventMask) bool {
	if l == nil {
		return false
	}
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	for _, r := range t.listeners {
		if r.Listener == l {
			return r.Mask.Includes(mask)
		}
	}
	return false
}

// Listeners returns a snapshot of the current registrations, in
// registration order.
func (t *Toolkit) Listeners() []Registration {
	t.listenersMu.Lock()
	defer t.listenersMu.Unlock()
	return append([]Registration(nil), t.listeners...)
}

// DispatchEvent delivers ev on the calling goroutine to every listener
// whose mask covers ev.Kind, in registration order. Listeners added or
// removed during delivery do not affect it. A panicking listener is logged
// and skipped. The delivered event is returned.
func (t *Toolkit) DispatchEvent(ev Event) Event {
	if ev.ID == 0 {
		ev.ID = t.nextEventID.Add(1)
	}
	if ev.When.IsZero() {
		ev.When = time.Now()
	}

	t.listenersMu.Lock()
	snapshot := t.listeners
	t.listenersMu.Unlock()

	for _, r := range snapshot {
		if r.Mask.Covers(ev.Kind) {
			t.deliver(r.Listener, ev)
		}
	}
	return ev
}

// PostEvent queues ev for delivery on the dispatch goroutine.
func (t *Toolkit) PostEvent(ev Event) error {
	return t.InvokeLater(func() { t.DispatchEvent(ev) })
}

func (t *Toolkit) deliver(l EventListener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("[Toolkit] panic in event listener", "event", ev, "listener", fmt.Sprintf("%T", l), "panic", r, "stack", string(debug.Stack()))
		}
	}()
	l.EventDispatched(ev)
	recordEventDelivered(ev.Kind)
}
