package command

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/go-fest/internal/config"
	"github.com/joeycumines/go-fest/internal/edt"
	"github.com/joeycumines/go-fest/internal/exitguard"
	"github.com/joeycumines/go-fest/internal/listener"
	"github.com/joeycumines/go-fest/internal/logging"
	"github.com/joeycumines/go-fest/internal/screenlock"
	"github.com/joeycumines/go-fest/internal/timing"
	"github.com/joeycumines/go-fest/internal/toolkit"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// lockRounds is how many times each selfcheck worker takes the lock.
const lockRounds = 25

// errSelfCheck is returned by bridge work to test that errors cross
// goroutines unchanged.
var errSelfCheck = errors.New("selfcheck: sentinel")

// SelfCheckCommand exercises every synchronization primitive against a
// private toolkit and reports the outcome of each check.
type SelfCheckCommand struct {
	*BaseCommand
	config *config.Config

	events      int
	workers     int
	timeout     time.Duration
	logLevel    string
	logFile     string
	logFormat   string
	showMetrics bool
}

// NewSelfCheckCommand creates a new selfcheck command.
func NewSelfCheckCommand(cfg *config.Config) *SelfCheckCommand {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &SelfCheckCommand{
		BaseCommand: NewBaseCommand(
			"selfcheck",
			"Verify the dispatch loop, screen lock, listeners and exit guard",
			"selfcheck [options]",
		),
		config: cfg,
	}
}

// SetupFlags configures the flags for the selfcheck command.
func (c *SelfCheckCommand) SetupFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.events, "events", 0, "Events to post through the deferred listener (default from [selfcheck] events)")
	fs.IntVar(&c.workers, "workers", 0, "Goroutines contending for the screen lock (default from [selfcheck] workers)")
	fs.DurationVar(&c.timeout, "timeout", 0, "Timeout for each wait (default from [selfcheck] timeout, then pause.timeout)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level override: debug, info, warn, error")
	fs.StringVar(&c.logFile, "log-file", "", "Log file override")
	fs.StringVar(&c.logFormat, "log-format", "", "Log format override: auto, text, json")
	fs.BoolVar(&c.showMetrics, "metrics", false, "Print the fest metrics after the checks")
}

type check struct {
	name string
	run  func(ctx context.Context) error
}

// selfCheck is the state shared by the checks of one run.
type selfCheck struct {
	logger  *slog.Logger
	toolkit *toolkit.Toolkit
	runner  *edt.Runner
	pauser  *timing.Pauser
	timeout time.Duration
	events  int
	workers int
}

// Execute runs every check, failing if any of them did.
func (c *SelfCheckCommand) Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 {
		_, _ = fmt.Fprintf(stderr, "unexpected arguments: %v\n", args)
		return fmt.Errorf("unexpected arguments")
	}

	effective, err := config.DefaultSchema().Effective(c.config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	settings, err := config.Resolve(c.config)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if settings, err = resolveLogSettings(settings, c.logLevel, c.logFile, c.logFormat); err != nil {
		return err
	}

	sc := &selfCheck{
		timeout: c.timeout,
		events:  c.events,
		workers: c.workers,
	}
	if sc.timeout <= 0 {
		sc.timeout = effective.GetSectionDuration("selfcheck", "timeout")
	}
	if sc.timeout <= 0 {
		sc.timeout = settings.PauseTimeout
	}
	if sc.events <= 0 {
		if sc.events = effective.GetSectionInt("selfcheck", "events"); sc.events <= 0 {
			return fmt.Errorf("[selfcheck] events: must be positive, got %d", sc.events)
		}
	}
	if sc.workers <= 0 {
		if sc.workers = effective.GetSectionInt("selfcheck", "workers"); sc.workers <= 0 {
			return fmt.Errorf("[selfcheck] workers: must be positive, got %d", sc.workers)
		}
	}

	logger, closer, err := logging.New(settings, stderr)
	if err != nil {
		return err
	}
	defer closer.Close()
	sc.logger = logger

	sc.pauser = timing.NewPauser(
		timing.WithDefaultTimeout(sc.timeout),
		timing.WithInterval(settings.PauseInterval),
		timing.WithLogger(logger),
	)

	sc.toolkit, err = toolkit.New(toolkit.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := sc.toolkit.Start(ctx); err != nil {
		_ = sc.toolkit.Close()
		return fmt.Errorf("starting toolkit: %w", err)
	}
	defer sc.toolkit.Close()
	sc.runner = edt.NewRunner(sc.toolkit, edt.WithLogger(logger))

	checks := []check{
		{"screen lock", sc.checkLock},
		{"bridge", sc.checkBridge},
		{"deferred listener", sc.checkDeferred},
		{"weak listener", sc.checkWeak},
		{"emergency abort", sc.checkAbort},
		{"wait", sc.checkWait},
		{"exit guard", sc.checkExitGuard},
	}

	w := tabwriter.NewWriter(stdout, 0, 8, 2, ' ', 0)
	var failures []error
	for _, chk := range checks {
		start := time.Now()
		err := chk.run(ctx)
		elapsed := time.Since(start).Round(time.Microsecond)
		if err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", chk.name, err))
			_, _ = fmt.Fprintf(w, "FAIL\t%s\t%v\t%v\n", chk.name, elapsed, err)
			logger.Error("[SelfCheck] check failed", "check", chk.name, "error", err)
			continue
		}
		_, _ = fmt.Fprintf(w, "ok\t%s\t%v\n", chk.name, elapsed)
	}
	_ = w.Flush()

	if c.showMetrics {
		if err := writeMetrics(stdout); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("selfcheck: %d of %d checks failed: %w", len(failures), len(checks), errors.Join(failures...))
	}
	return nil
}

func (sc *selfCheck) checkLock(ctx context.Context) error {
	lock := screenlock.New(screenlock.WithLogger(sc.logger))
	var inside, most atomic.Int32

	g, ctx := errgroup.WithContext(ctx)
	for i := range sc.workers {
		owner := fmt.Sprintf("selfcheck-%d", i)
		g.Go(func() error {
			for range lockRounds {
				if err := lock.AcquireContext(ctx, owner); err != nil {
					return err
				}
				n := inside.Add(1)
				for m := most.Load(); n > m && !most.CompareAndSwap(m, n); m = most.Load() {
				}
				runtime.Gosched()
				inside.Add(-1)
				if err := lock.Release(owner); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if n := most.Load(); n != 1 {
		return fmt.Errorf("%d owners held the lock at once", n)
	}
	if err := lock.Release("nobody"); !errors.Is(err, screenlock.ErrNotLocked) {
		return fmt.Errorf("releasing a free lock returned %v", err)
	}
	return nil
}

func (sc *selfCheck) checkBridge(context.Context) error {
	onDispatch, err := edt.Execute(sc.runner, func() (bool, error) {
		return sc.toolkit.IsDispatchThread(), nil
	})
	if err != nil {
		return err
	}
	if !onDispatch {
		return errors.New("query did not run on the dispatch goroutine")
	}

	if _, err := edt.Execute(sc.runner, func() (int, error) { return 0, errSelfCheck }); err != errSelfCheck {
		return fmt.Errorf("error changed crossing goroutines: %v", err)
	}

	res := edt.ExecuteResult(sc.runner, func() (int, error) { panic(errSelfCheck) })
	if res.Panic == nil || res.Panic.Value != any(errSelfCheck) {
		return fmt.Errorf("panic value changed crossing goroutines: %v", res.Panic)
	}
	return nil
}

var selfCheckKinds = []toolkit.EventKind{
	toolkit.KeyEvent,
	toolkit.MouseEvent,
	toolkit.FocusEvent,
	toolkit.WindowEvent,
	toolkit.HierarchyEvent,
	toolkit.ComponentEvent,
}

// checkDeferred dispatches events off the dispatch goroutine, which the
// deferred listener must hand over to it in order.
func (sc *selfCheck) checkDeferred(ctx context.Context) error {
	var (
		ids       []uint64 // dispatch goroutine only
		processed atomic.Int64
	)
	d := listener.NewDeferred(sc.toolkit, listener.EventProcessorFunc(func(ev toolkit.Event) {
		ids = append(ids, ev.ID)
		processed.Add(1)
	}), sc.logger)
	sc.toolkit.AddEventListener(d, toolkit.AllEvents)
	defer d.Detach()

	for i := range sc.events {
		sc.toolkit.DispatchEvent(toolkit.Event{Kind: selfCheckKinds[i%len(selfCheckKinds)], Source: "selfcheck"})
	}

	want := int64(sc.events)
	if err := sc.pauser.PauseContext(ctx, timing.NewCondition(fmt.Sprintf("%d events processed", want), func() bool {
		return processed.Load() == want
	}), sc.timeout); err != nil {
		return err
	}

	ordered, err := edt.Execute(sc.runner, func() (bool, error) {
		return slices.IsSorted(ids), nil
	})
	if err != nil {
		return err
	}
	if !ordered {
		return errors.New("events processed out of order")
	}
	return nil
}

type probe struct{ seen atomic.Int32 }

func (p *probe) EventDispatched(toolkit.Event) { p.seen.Add(1) }

func (sc *selfCheck) checkWeak(context.Context) error {
	target := &probe{}
	w := listener.Attach(sc.toolkit, target, toolkit.MouseEvents)

	sc.toolkit.DispatchEvent(toolkit.Event{Kind: toolkit.MouseEvent, Source: "selfcheck"})
	sc.toolkit.DispatchEvent(toolkit.Event{Kind: toolkit.KeyEvent, Source: "selfcheck"})
	if n := target.seen.Load(); n != 1 {
		return fmt.Errorf("weak listener saw %d events, want 1", n)
	}

	w.Detach()
	if sc.toolkit.Contains(w, toolkit.MouseEvents) {
		return errors.New("detached listener still registered")
	}
	runtime.KeepAlive(target)
	return nil
}

// checkAbort presses the emergency abort combination and a near miss.
func (sc *selfCheck) checkAbort(context.Context) error {
	var aborts atomic.Int32
	a := listener.RegisterEmergencyAbort(sc.toolkit, func() { aborts.Add(1) }, sc.logger)
	defer a.Unregister()

	press := func(mods toolkit.Modifiers) {
		sc.toolkit.DispatchEvent(toolkit.Event{
			Kind:      toolkit.KeyEvent,
			Source:    "selfcheck",
			KeyAction: toolkit.KeyPressed,
			Key:       listener.DefaultAbortCombination.Key,
			Modifiers: mods,
		})
	}
	press(toolkit.CtrlDown)
	press(listener.DefaultAbortCombination.Modifiers)
	if n := aborts.Load(); n != 1 {
		return fmt.Errorf("emergency abort fired %d times, want 1", n)
	}
	return nil
}

// checkWait posts an event and waits for its delivery.
func (sc *selfCheck) checkWait(ctx context.Context) error {
	target := &probe{}
	sc.toolkit.AddEventListener(target, toolkit.WindowEvents)
	defer sc.toolkit.RemoveEventListener(target)

	if err := sc.toolkit.PostEvent(toolkit.Event{Kind: toolkit.WindowEvent, Source: "selfcheck"}); err != nil {
		return err
	}
	delivered, err := timing.Await(ctx, sc.pauser, "posted event delivered", target.seen.Load, func(n int32) bool { return n > 0 }, sc.timeout)
	if err != nil {
		return err
	}
	if delivered != 1 {
		return fmt.Errorf("posted event delivered %d times", delivered)
	}
	return nil
}

func (sc *selfCheck) checkExitGuard(context.Context) error {
	var hooked atomic.Int32
	var installer exitguard.Installer
	installer.Install(exitguard.ExitCallHookFunc(func(int) { hooked.Add(1) }))
	status, trapped := exitguard.Trap(func() { exitguard.Exit(7) })
	installer.Uninstall()

	switch {
	case !trapped:
		return errors.New("exit not trapped")
	case status != 7:
		return fmt.Errorf("trapped status %d, want 7", status)
	case hooked.Load() != 1:
		return fmt.Errorf("hook called %d times, want 1", hooked.Load())
	case isNoExitPolicy(exitguard.CurrentPolicy()):
		return errors.New("exit guard still installed")
	}
	return nil
}

func isNoExitPolicy(p exitguard.Policy) bool {
	_, ok := p.(*exitguard.NoExitPolicy)
	return ok
}

func writeMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "\nMetrics:")
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "fest_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			var value string
			switch {
			case m.GetCounter() != nil:
				value = strconv.FormatFloat(m.GetCounter().GetValue(), 'f', -1, 64)
			case m.GetGauge() != nil:
				value = strconv.FormatFloat(m.GetGauge().GetValue(), 'f', -1, 64)
			case m.GetHistogram() != nil:
				value = fmt.Sprintf("count=%d sum=%gs", m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum())
			}
			_, _ = fmt.Fprintf(tw, "  %s{%s}\t%s\n", mf.GetName(), strings.Join(labels, ","), value)
		}
	}
	return tw.Flush()
}
