package listener

import (
	"sync/atomic"
	"weak"

	"github.com/joeycumines/go-fest/internal/toolkit"
)

// Weak is a registered listener forwarding to a target it does not keep
// alive. The first event delivered after the target is collected, or after
// Detach, unregisters the wrapper and is dropped.
type Weak[T any, P interface {
	*T
	toolkit.EventListener
}] struct {
	registry Registry
	target   weak.Pointer[T]
	mask     toolkit.EventMask
	detached atomic.Bool
}

// Attach wraps target and registers the wrapper with r under mask.
func Attach[T any, P interface {
	*T
	toolkit.EventListener
}](r Registry, target P, mask toolkit.EventMask) *Weak[T, P] {
	w := &Weak[T, P]{
		registry: r,
		target:   weak.Make((*T)(target)),
		mask:     mask,
	}
	r.AddEventListener(w, mask)
	return w
}

// EventDispatched implements toolkit.EventListener.
func (w *Weak[T, P]) EventDispatched(ev toolkit.Event) {
	ptr := w.target.Value()
	if ptr == nil || w.detached.Load() {
		w.dispose()
		return
	}
	P(ptr).EventDispatched(ev)
}

// Target returns the wrapped listener, or nil once it has been collected
// or the wrapper detached.
func (w *Weak[T, P]) Target() P {
	ptr := w.target.Value()
	if ptr == nil || w.detached.Load() {
		return nil
	}
	return P(ptr)
}

// Mask returns the mask the wrapper was registered under.
func (w *Weak[T, P]) Mask() toolkit.EventMask {
	return w.mask
}

// Detach unregisters the wrapper immediately.
func (w *Weak[T, P]) Detach() {
	w.detached.Store(true)
	w.registry.RemoveEventListener(w)
}

func (w *Weak[T, P]) dispose() {
	// a delivery snapshot taken before Detach can still reach us
	if !w.detached.Swap(true) {
		recordWeakDisposed()
	}
	w.registry.RemoveEventListener(w)
}

// AttachDeferred registers a Deferred that forwards to target, holding
// target weakly. Once target is collected, the next processed event
// unregisters the Deferred.
func AttachDeferred[T any, P interface {
	*T
	EventProcessor
}](tk Toolkit, target P, mask toolkit.EventMask) *Deferred {
	ref := weak.Make((*T)(target))
	d := NewDeferred(tk, nil, nil)
	d.registry = tk
	d.processor = EventProcessorFunc(func(ev toolkit.Event) {
		ptr := ref.Value()
		if ptr == nil {
			tk.RemoveEventListener(d)
			recordWeakDisposed()
			return
		}
		P(ptr).ProcessEvent(ev)
	})
	tk.AddEventListener(d, mask)
	return d
}
