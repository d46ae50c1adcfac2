package edt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-fest/internal/toolkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newToolkit(t *testing.T) *toolkit.Toolkit {
	t.Helper()
	tk, err := toolkit.New()
	require.NoError(t, err)
	require.NoError(t, tk.Start(context.Background()))
	t.Cleanup(func() { _ = tk.Close() })
	return tk
}

// droppingDispatcher accepts work but never runs it, then stops.
type droppingDispatcher struct {
	done chan struct{}
}

func (d *droppingDispatcher) InvokeLater(func()) error {
	close(d.done)
	return nil
}

func (d *droppingDispatcher) IsDispatchThread() bool { return false }

func (d *droppingDispatcher) Done() <-chan struct{} { return d.done }

func TestExecute_ReturnsValueFromDispatchGoroutine(t *testing.T) {
	tk := newToolkit(t)
	r := NewRunner(tk)

	onDispatch, err := Execute(r, func() (bool, error) {
		return tk.IsDispatchThread(), nil
	})
	require.NoError(t, err)
	require.True(t, onDispatch)

	v, err := Execute(r, func() (string, error) { return "title", nil })
	require.NoError(t, err)
	require.Equal(t, "title", v)
}

func TestExecute_ErrorIdentity(t *testing.T) {
	r := NewRunner(newToolkit(t))
	sentinel := errors.New("component not showing")

	_, err := Execute(r, func() (int, error) { return 0, sentinel })
	require.True(t, err == sentinel)

	err = Run(r, func() error { return sentinel })
	require.True(t, err == sentinel)
}

type actionFailed struct{ msg string }

func TestExecute_PanicIdentity(t *testing.T) {
	r := NewRunner(newToolkit(t))
	want := &actionFailed{msg: "unable to click"}

	got := func() (v any) {
		defer func() { v = recover() }()
		_ = Run(r, func() error { panic(want) })
		return nil
	}()
	require.Same(t, want, got)
}

func TestExecuteResult_Panic(t *testing.T) {
	r := NewRunner(newToolkit(t))
	cause := errors.New("boom")

	res := ExecuteResult(r, func() (int, error) { panic(cause) })
	require.False(t, res.OK())
	require.NotNil(t, res.Panic)
	require.Same(t, cause, res.Panic.Value)
	require.NotEmpty(t, res.Panic.Stack)

	_, err := res.Get()
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "boom")

	require.PanicsWithError(t, "boom", func() { res.MustGet() })
}

func TestResult_MustGet(t *testing.T) {
	require.Equal(t, 7, Result[int]{Value: 7}.MustGet())
	err := errors.New("nope")
	require.PanicsWithValue(t, err, func() { Result[int]{Err: err}.MustGet() })
}

func TestExecute_InlineOnDispatchGoroutine(t *testing.T) {
	tk := newToolkit(t)
	r := NewRunner(tk)

	done := make(chan int, 1)
	require.NoError(t, tk.InvokeLater(func() {
		v, _ := Execute(r, func() (int, error) { return 42, nil })
		done <- v
	}))
	select {
	case v := <-done:
		require.Equal(t, 42, v)
	case <-time.After(5 * time.Second):
		t.Fatal("execute on the dispatch goroutine deadlocked")
	}
}

func TestExecuteInDispatchThread_Toggle(t *testing.T) {
	tk := newToolkit(t)
	r := NewRunner(tk, WithExecuteInDispatchThread(false))
	require.False(t, r.ExecuteInDispatchThread())

	onDispatch, err := Execute(r, func() (bool, error) { return tk.IsDispatchThread(), nil })
	require.NoError(t, err)
	require.False(t, onDispatch)

	r.SetExecuteInDispatchThread(true)
	onDispatch, err = Execute(r, func() (bool, error) { return tk.IsDispatchThread(), nil })
	require.NoError(t, err)
	require.True(t, onDispatch)
}

func TestExecute_NotScheduled(t *testing.T) {
	tk, err := toolkit.New()
	require.NoError(t, err)
	r := NewRunner(tk)

	err = Run(r, func() error { return nil })
	require.ErrorIs(t, err, ErrNotScheduled)
	require.ErrorIs(t, err, toolkit.ErrNotRunning)
}

func TestExecute_DispatcherStopsBeforeRunning(t *testing.T) {
	r := NewRunner(&droppingDispatcher{done: make(chan struct{})})
	_, err := Execute(r, func() (int, error) { return 1, nil })
	require.ErrorIs(t, err, ErrNotScheduled)
}

func TestNilWork(t *testing.T) {
	r := NewRunner(newToolkit(t))
	require.ErrorIs(t, Run(r, nil), ErrNilWork)
	_, err := Execute[int](r, nil)
	require.ErrorIs(t, err, ErrNilWork)
	_, err = ExecuteInCurrentThread[int](nil)
	require.ErrorIs(t, err, ErrNilWork)
	require.ErrorIs(t, RunInCurrentThread(nil), ErrNilWork)
	require.Panics(t, func() { NewRunner(nil) })
}

func TestCurrentThreadVariants(t *testing.T) {
	tk := newToolkit(t)
	v, err := ExecuteInCurrentThread(func() (bool, error) { return tk.IsDispatchThread(), nil })
	require.NoError(t, err)
	require.False(t, v)

	ran := false
	require.NoError(t, RunInCurrentThread(func() error { ran = true; return nil }))
	require.True(t, ran)
}

func TestRun_SerializesConcurrentCallers(t *testing.T) {
	r := NewRunner(newToolkit(t))

	// only ever touched on the dispatch goroutine
	counter := 0
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			for range 50 {
				if err := Run(r, func() error { counter++; return nil }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	n, err := Execute(r, func() (int, error) { return counter, nil })
	require.NoError(t, err)
	require.Equal(t, 400, n)
}
