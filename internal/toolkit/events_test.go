package toolkit

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	onTK   []bool
	tk     *Toolkit
}

func (r *recorder) EventDispatched(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if r.tk != nil {
		r.onTK = append(r.onTK, r.tk.IsDispatchThread())
	}
}

func (r *recorder) ids() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint64
	for _, ev := range r.events {
		ids = append(ids, ev.ID)
	}
	return ids
}

type panicker struct{}

func (*panicker) EventDispatched(Event) { panic("listener failure") }

func TestEventMask(t *testing.T) {
	assert.True(t, AllEvents.Covers(KeyEvent))
	assert.True(t, MouseEvents.Covers(MouseEvent))
	assert.False(t, MouseEvents.Covers(KeyEvent))
	assert.False(t, AllEvents.Covers(EventKind(0)))
	assert.False(t, AllEvents.Covers(EventKind(42)))
	assert.True(t, AllEvents.Includes(KeyEvents|WindowEvents))
	assert.False(t, KeyEvents.Includes(KeyEvents|WindowEvents))
	assert.Equal(t, "key|mouse", (KeyEvents | MouseEvents).String())
	assert.Equal(t, "none", EventMask(0).String())
	assert.Equal(t, "EventKind(42)", EventKind(42).String())
	assert.Equal(t, ComponentEvents, ComponentEvent.Mask())
}

func TestAddRemoveContains(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	l := &recorder{}

	tk.AddEventListener(l, KeyEvents)
	require.True(t, tk.Contains(l, KeyEvents))
	require.False(t, tk.Contains(l, KeyEvents|MouseEvents))

	// re-adding widens the mask rather than duplicating the registration
	tk.AddEventListener(l, MouseEvents)
	require.True(t, tk.Contains(l, KeyEvents|MouseEvents))
	require.Len(t, tk.Listeners(), 1)

	tk.AddEventListener(nil, AllEvents)
	tk.AddEventListener(&recorder{}, 0)
	require.Len(t, tk.Listeners(), 1)

	tk.RemoveEventListener(l)
	require.False(t, tk.Contains(l, KeyEvents))
	require.Empty(t, tk.Listeners())
	tk.RemoveEventListener(l)
}

func TestDispatchEvent_FiltersByMask(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	keys, all := &recorder{}, &recorder{}
	tk.AddEventListener(keys, KeyEvents)
	tk.AddEventListener(all, AllEvents)

	before := testutil.ToFloat64(metricEventsDelivered.WithLabelValues("key"))
	k := tk.DispatchEvent(Event{Kind: KeyEvent, Source: "field"})
	m := tk.DispatchEvent(Event{Kind: MouseEvent, Source: "button"})
	require.NotZero(t, k.ID)
	require.Greater(t, m.ID, k.ID)
	require.False(t, k.When.IsZero())

	if diff := cmp.Diff([]uint64{k.ID}, keys.ids()); diff != "" {
		t.Errorf("key listener (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]uint64{k.ID, m.ID}, all.ids()); diff != "" {
		t.Errorf("all listener (-want +got):\n%s", diff)
	}
	require.Equal(t, before+2, testutil.ToFloat64(metricEventsDelivered.WithLabelValues("key")))
}

type selfRemover struct {
	tk    *Toolkit
	calls int
}

func (s *selfRemover) EventDispatched(Event) {
	s.calls++
	s.tk.RemoveEventListener(s)
}

func TestDispatchEvent_RemovalDuringDelivery(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	first := &selfRemover{tk: tk}
	second := &recorder{}
	tk.AddEventListener(first, AllEvents)
	tk.AddEventListener(second, AllEvents)

	tk.DispatchEvent(Event{Kind: FocusEvent})
	tk.DispatchEvent(Event{Kind: FocusEvent})
	require.Equal(t, 1, first.calls)
	require.Len(t, second.ids(), 2)
}

type widener struct {
	tk     *Toolkit
	target EventListener
}

func (w *widener) EventDispatched(Event) { w.tk.AddEventListener(w.target, MouseEvents) }

func TestDispatchEvent_WideningDuringDelivery(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	keys := &recorder{}
	tk.AddEventListener(&widener{tk: tk, target: keys}, AllEvents)
	tk.AddEventListener(keys, KeyEvents)

	tk.DispatchEvent(Event{ID: 1, Kind: MouseEvent})
	assert.Empty(t, keys.ids(), "in-flight delivery must keep the old mask")
	assert.True(t, tk.Contains(keys, KeyEvents|MouseEvents))

	tk.DispatchEvent(Event{ID: 2, Kind: MouseEvent})
	assert.Equal(t, []uint64{2}, keys.ids())
}

func TestDispatchEvent_ConcurrentWidening(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	l := &recorder{}
	tk.AddEventListener(l, KeyEvents)

	var wg sync.WaitGroup
	wg.Go(func() {
		for range 200 {
			tk.DispatchEvent(Event{Kind: KeyEvent})
		}
	})
	wg.Go(func() {
		for i := range 200 {
			if i%2 == 0 {
				tk.AddEventListener(l, MouseEvents)
			} else {
				tk.RemoveEventListener(l)
				tk.AddEventListener(l, KeyEvents)
			}
		}
	})
	wg.Wait()
	assert.True(t, tk.Contains(l, KeyEvents))
}

func TestDispatchEvent_PanickingListenerSkipped(t *testing.T) {
	tk, err := New()
	require.NoError(t, err)
	after := &recorder{}
	tk.AddEventListener(&panicker{}, AllEvents)
	tk.AddEventListener(after, AllEvents)

	require.NotPanics(t, func() { tk.DispatchEvent(Event{Kind: WindowEvent}) })
	require.Len(t, after.ids(), 1)
}

func TestPostEvent_DeliveredOnDispatchGoroutine(t *testing.T) {
	tk := newStarted(t)
	l := &recorder{tk: tk}
	tk.AddEventListener(l, AllEvents)

	for i := range 5 {
		require.NoError(t, tk.PostEvent(Event{ID: uint64(i + 1), Kind: ComponentEvent}))
	}
	require.NoError(t, tk.InvokeAndWait(func() {}))

	require.Equal(t, []uint64{1, 2, 3, 4, 5}, l.ids())
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, on := range l.onTK {
		require.True(t, on)
	}
}
