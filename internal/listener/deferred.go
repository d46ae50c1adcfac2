// Package listener attaches long-lived observers to a toolkit's global
// event stream.
//
// [Deferred] re-homes events that arrive off the dispatch goroutine onto
// it, preserving their order. [Weak] holds its target weakly and
// unregisters itself once the target is garbage collected, so an observer
// is never kept alive by its registration. [EmergencyAbort] watches the key
// events for the combination that aborts a running test.
package listener

import (
	"log/slog"
	"sync"

	"github.com/joeycumines/go-fest/internal/toolkit"
)

// Dispatcher schedules work on, and identifies, the dispatch goroutine.
type Dispatcher interface {
	InvokeLater(fn func()) error
	IsDispatchThread() bool
}

// Registry is the toolkit's global listener registry.
type Registry interface {
	AddEventListener(l toolkit.EventListener, mask toolkit.EventMask)
	RemoveEventListener(l toolkit.EventListener)
}

// Toolkit is both. *toolkit.Toolkit satisfies it.
type Toolkit interface {
	Dispatcher
	Registry
}

// EventProcessor handles events on the dispatch goroutine.
type EventProcessor interface {
	ProcessEvent(ev toolkit.Event)
}

// EventProcessorFunc adapts a function to EventProcessor.
type EventProcessorFunc func(ev toolkit.Event)

func (f EventProcessorFunc) ProcessEvent(ev toolkit.Event) { f(ev) }

// Deferred is an event listener that only ever processes events on the
// dispatch goroutine. Events delivered elsewhere are queued, and a flush is
// posted to the dispatch goroutine. Any event delivered on the dispatch
// goroutine first drains the queue, so events from one dispatch goroutine
// are processed in arrival order.
type Deferred struct {
	dispatcher Dispatcher
	processor  EventProcessor
	logger     *slog.Logger

	// set by AttachDeferred
	registry Registry

	mu       sync.Mutex
	deferred []toolkit.Event
}

// NewDeferred returns a Deferred forwarding to p. Register it with the
// toolkit to start receiving events.
func NewDeferred(d Dispatcher, p EventProcessor, logger *slog.Logger) *Deferred {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deferred{dispatcher: d, processor: p, logger: logger}
}

// EventDispatched implements toolkit.EventListener.
func (d *Deferred) EventDispatched(ev toolkit.Event) {
	if !d.dispatcher.IsDispatchThread() {
		d.mu.Lock()
		d.deferred = append(d.deferred, ev)
		d.mu.Unlock()
		recordDeferred()
		// if a regular event reaches the dispatch goroutine first, it drains
		// the queue and this flush finds nothing
		if err := d.dispatcher.InvokeLater(d.Flush); err != nil {
			d.logger.Warn("[Listener] unable to schedule deferred flush", "event", ev, "pending", d.Pending(), "error", err)
		}
		return
	}
	d.Flush()
	d.processor.ProcessEvent(ev)
}

// Flush processes every queued event in order. It must run on the dispatch
// goroutine. Events queued while flushing are left for the next flush.
func (d *Deferred) Flush() {
	d.mu.Lock()
	queue := d.deferred
	d.deferred = nil
	d.mu.Unlock()

	for _, ev := range queue {
		d.processor.ProcessEvent(ev)
	}
}

// Pending returns the number of queued events.
func (d *Deferred) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deferred)
}

// Detach unregisters a Deferred created by AttachDeferred and discards its
// queue.
func (d *Deferred) Detach() {
	if d.registry != nil {
		d.registry.RemoveEventListener(d)
	}
	d.mu.Lock()
	d.deferred = nil
	d.mu.Unlock()
}
