// Package internal_test contains cross-package benchmarks and latency
// regression checks for the synchronization core.
package internal_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/joeycumines/go-fest/internal/config"
	"github.com/joeycumines/go-fest/internal/edt"
	"github.com/joeycumines/go-fest/internal/listener"
	"github.com/joeycumines/go-fest/internal/screenlock"
	"github.com/joeycumines/go-fest/internal/timing"
	"github.com/joeycumines/go-fest/internal/toolkit"
)

// Regression thresholds, in microseconds per operation. They are loose on
// purpose: the race detector and shared CI hosts slow everything down.
const (
	thresholdLockAcquireRelease = 200
	thresholdBridgeRoundTrip    = 5000
	thresholdDispatchEvent      = 500
	thresholdPauseSatisfied     = 100
)

func startToolkit(tb testing.TB) *toolkit.Toolkit {
	tb.Helper()
	tk, err := toolkit.New()
	if err != nil {
		tb.Fatalf("toolkit.New: %v", err)
	}
	if err := tk.Start(context.Background()); err != nil {
		tb.Fatalf("Start: %v", err)
	}
	tb.Cleanup(func() { _ = tk.Close() })
	return tk
}

type nopListener struct{}

func (*nopListener) EventDispatched(toolkit.Event) {}

func BenchmarkScreenLock(b *testing.B) {
	b.Run("AcquireRelease", func(b *testing.B) {
		lock := screenlock.New()
		b.ReportAllocs()
		for b.Loop() {
			lock.Acquire("bench")
			if err := lock.Release("bench"); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("Contended", func(b *testing.B) {
		lock := screenlock.New()
		b.ReportAllocs()
		b.RunParallel(func(pb *testing.PB) {
			owner := new(int)
			for pb.Next() {
				lock.Acquire(owner)
				_ = lock.Release(owner)
			}
		})
	})
}

func BenchmarkBridge(b *testing.B) {
	tk := startToolkit(b)
	runner := edt.NewRunner(tk)

	b.Run("Execute", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			if _, err := edt.Execute(runner, func() (int, error) { return 1, nil }); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("ExecuteInline", func(b *testing.B) {
		inline := edt.NewRunner(tk, edt.WithExecuteInDispatchThread(false))
		b.ReportAllocs()
		for b.Loop() {
			if _, err := edt.Execute(inline, func() (int, error) { return 1, nil }); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("InvokeAndWait", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			if err := tk.InvokeAndWait(func() {}); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkEvents(b *testing.B) {
	b.Run("DispatchEvent", func(b *testing.B) {
		tk := startToolkit(b)
		for range 8 {
			tk.AddEventListener(&nopListener{}, toolkit.AllEvents)
		}
		ev := toolkit.Event{Kind: toolkit.MouseEvent}
		b.ReportAllocs()
		for b.Loop() {
			tk.DispatchEvent(ev)
		}
	})

	b.Run("DeferredOffDispatch", func(b *testing.B) {
		tk := startToolkit(b)
		d := listener.NewDeferred(tk, listener.EventProcessorFunc(func(toolkit.Event) {}), nil)
		tk.AddEventListener(d, toolkit.AllEvents)
		ev := toolkit.Event{Kind: toolkit.KeyEvent}
		b.ReportAllocs()
		for b.Loop() {
			tk.DispatchEvent(ev)
		}
		b.StopTimer()
		_ = tk.InvokeAndWait(d.Flush)
	})
}

func BenchmarkConfigLoading(b *testing.B) {
	content := `# fest configuration
pause.timeout 10s
log.level debug
[selfcheck]
events 50
`
	b.Run("LoadFromReader", func(b *testing.B) {
		b.ReportAllocs()
		for b.Loop() {
			if _, err := config.LoadFromReader(strings.NewReader(content)); err != nil {
				b.Fatalf("failed to load config: %v", err)
			}
		}
	})

	b.Run("Resolve", func(b *testing.B) {
		cfg, err := config.LoadFromReader(strings.NewReader(content))
		if err != nil {
			b.Fatal(err)
		}
		b.ReportAllocs()
		for b.Loop() {
			if _, err := config.Resolve(cfg); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func averageMicros(iterations int, fn func()) int64 {
	start := time.Now()
	for range iterations {
		fn()
	}
	return time.Since(start).Microseconds() / int64(iterations)
}

func TestPerformanceRegression(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping in short mode")
	}

	t.Run("LockAcquireRelease", func(t *testing.T) {
		lock := screenlock.New()
		avg := averageMicros(1000, func() {
			lock.Acquire("perf")
			_ = lock.Release("perf")
		})
		if avg > thresholdLockAcquireRelease {
			t.Errorf("lock acquire/release too slow: avg %d μs (threshold: %d μs)", avg, thresholdLockAcquireRelease)
		}
		t.Logf("lock acquire/release: avg %d μs (threshold: %d μs)", avg, thresholdLockAcquireRelease)
	})

	t.Run("BridgeRoundTrip", func(t *testing.T) {
		runner := edt.NewRunner(startToolkit(t))
		avg := averageMicros(200, func() {
			_, _ = edt.Execute(runner, func() (int, error) { return 0, nil })
		})
		if avg > thresholdBridgeRoundTrip {
			t.Errorf("bridge round trip too slow: avg %d μs (threshold: %d μs)", avg, thresholdBridgeRoundTrip)
		}
		t.Logf("bridge round trip: avg %d μs (threshold: %d μs)", avg, thresholdBridgeRoundTrip)
	})

	t.Run("DispatchEvent", func(t *testing.T) {
		tk := startToolkit(t)
		tk.AddEventListener(&nopListener{}, toolkit.AllEvents)
		avg := averageMicros(1000, func() {
			tk.DispatchEvent(toolkit.Event{Kind: toolkit.FocusEvent})
		})
		if avg > thresholdDispatchEvent {
			t.Errorf("event dispatch too slow: avg %d μs (threshold: %d μs)", avg, thresholdDispatchEvent)
		}
		t.Logf("event dispatch: avg %d μs (threshold: %d μs)", avg, thresholdDispatchEvent)
	})

	t.Run("PauseAlreadySatisfied", func(t *testing.T) {
		ready := timing.NewCondition("ready", func() bool { return true })
		avg := averageMicros(1000, func() {
			_ = timing.PauseFor(ready, time.Second)
		})
		if avg > thresholdPauseSatisfied {
			t.Errorf("satisfied pause too slow: avg %d μs (threshold: %d μs)", avg, thresholdPauseSatisfied)
		}
		t.Logf("satisfied pause: avg %d μs (threshold: %d μs)", avg, thresholdPauseSatisfied)
	})
}
