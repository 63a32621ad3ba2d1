// Package dispatcher owns the process-wide operating mode and coordinates
// the side effects of mode transitions.
package dispatcher

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/app/trader"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/domain/mode"
	"github.com/coachpo/atomictrader/internal/infra/clock"
	"github.com/coachpo/atomictrader/internal/infra/report"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
	"github.com/coachpo/atomictrader/internal/observability"
)

const (
	component          = "dispatcher"
	defaultGracePeriod = 2 * time.Second
)

// ClockFactory synchronises a new network clock.
type ClockFactory func(ctx context.Context) (*clock.Clock, error)

// TraderFactory builds the trader handle. The notifier must receive every
// strategy and connection change raised by the trader.
type TraderFactory func(notifier trader.Notifier) *trader.Trader

// Monitor is the auxiliary status endpoint. Start must be idempotent.
type Monitor interface {
	Start() error
}

// Options wires the dispatcher's collaborators.
type Options struct {
	Sink        *report.Sink
	Clock       ClockFactory
	Trader      TraderFactory
	Monitor     Monitor
	GracePeriod time.Duration
	// Exit terminates the process; defaults to os.Exit.
	Exit func(code int)
}

// Dispatcher is the single authority over the operating mode.
type Dispatcher struct {
	sink          *report.Sink
	clockFactory  ClockFactory
	traderFactory TraderFactory
	monitor       Monitor
	grace         time.Duration
	exit          func(int)

	// mu serialises transitions and lazy construction of the clock and trader.
	mu     sync.Mutex
	mode   atomic.Value // mode.Mode
	clock  atomic.Pointer[clock.Clock]
	trader atomic.Pointer[trader.Trader]

	listenersMu sync.RWMutex
	listeners   []Listener

	shuttingDown atomic.Bool

	transitionCounter metric.Int64Counter
	transitionLatency metric.Float64Histogram
	listenerFailures  metric.Int64Counter
	notifyLatency     metric.Float64Histogram
	unwindLatency     metric.Float64Histogram
	shutdownCounter   metric.Int64Counter
}

// New constructs a dispatcher in Idle mode. It panics when no sink is supplied.
func New(opts Options) *Dispatcher {
	if opts.Sink == nil {
		panic("dispatcher: report sink required")
	}
	d := &Dispatcher{
		sink:          opts.Sink,
		clockFactory:  opts.Clock,
		traderFactory: opts.Trader,
		monitor:       opts.Monitor,
		grace:         opts.GracePeriod,
		exit:          opts.Exit,
	}
	if d.grace <= 0 {
		d.grace = defaultGracePeriod
	}
	if d.exit == nil {
		d.exit = os.Exit
	}
	if d.traderFactory == nil {
		d.traderFactory = func(n trader.Notifier) *trader.Trader { return trader.New(nil, n) }
	}
	d.mode.Store(mode.Idle)
	d.initMetrics()
	return d
}

func (d *Dispatcher) initMetrics() {
	meter := otel.Meter("dispatcher")
	d.transitionCounter, _ = meter.Int64Counter("dispatcher.transitions",
		metric.WithDescription("Mode transitions by outcome"),
		metric.WithUnit("{transition}"))
	d.transitionLatency, _ = meter.Float64Histogram(telemetry.MetricTransitionDuration,
		metric.WithDescription("Mode transition duration"),
		metric.WithUnit("ms"))
	d.listenerFailures, _ = meter.Int64Counter("dispatcher.listener.failures",
		metric.WithDescription("Listener callbacks that failed"),
		metric.WithUnit("{failure}"))
	d.notifyLatency, _ = meter.Float64Histogram(telemetry.MetricNotifyDuration,
		metric.WithDescription("Listener fan-out duration"),
		metric.WithUnit("ms"))
	d.unwindLatency, _ = meter.Float64Histogram(telemetry.MetricUnwindDuration,
		metric.WithDescription("Strategy unwind duration during shutdown"),
		metric.WithUnit("ms"))
	d.shutdownCounter, _ = meter.Int64Counter("dispatcher.shutdowns",
		metric.WithDescription("Shutdown requests by outcome"),
		metric.WithUnit("{shutdown}"))
}

// Mode returns the last committed operating mode.
func (d *Dispatcher) Mode() mode.Mode {
	return d.mode.Load().(mode.Mode)
}

// Clock returns the network clock, or nil if no live mode was entered yet.
func (d *Dispatcher) Clock() *clock.Clock {
	return d.clock.Load()
}

// Sink returns the report sink.
func (d *Dispatcher) Sink() *report.Sink {
	return d.sink
}

// Trader returns the trader handle, constructing it on first use.
func (d *Dispatcher) Trader() *trader.Trader {
	if t := d.trader.Load(); t != nil {
		return t
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.traderLocked()
}

// ActiveTrader returns the trader handle if it has been constructed, or nil.
// It never blocks on an in-flight transition.
func (d *Dispatcher) ActiveTrader() *trader.Trader {
	return d.trader.Load()
}

func (d *Dispatcher) traderLocked() *trader.Trader {
	if t := d.trader.Load(); t != nil {
		return t
	}
	t := d.traderFactory(d)
	d.trader.Store(t)
	return t
}

// SetMode transitions to target. A clock failure aborts the transition and
// leaves the mode unchanged. A venue connect failure is returned after the
// mode has been committed and listeners have been notified.
func (d *Dispatcher) SetMode(ctx context.Context, target mode.Mode) error {
	if !target.Valid() {
		return errs.New(component, errs.CodeInvalid,
			errs.WithMessage("unknown operating mode"),
			errs.WithField("mode", string(target)))
	}
	start := time.Now()

	d.mu.Lock()
	from := d.Mode()
	if target.Live() && d.clock.Load() == nil {
		c, err := d.newClock(ctx)
		if err != nil {
			d.mu.Unlock()
			d.recordTransition(ctx, from, target, telemetry.ResultError, start)
			return errs.New(component, errs.CodeTimeSource,
				errs.WithMode(target.Name()),
				errs.WithMessage("network time source unavailable"),
				errs.WithRemediation("check clock.servers and outbound NTP access"),
				errs.WithCause(err))
		}
		d.clock.Store(c)
	}

	if target != from {
		d.sink.Report(component, "Running mode changed from: "+from.Name()+" to: "+target.Name())
	}
	d.mode.Store(target)

	if target == mode.Optimization {
		d.sink.Disable()
	} else {
		d.sink.Enable()
	}

	if d.monitor != nil {
		if err := d.monitor.Start(); err != nil {
			d.sink.ReportError(errs.New(component, errs.CodeUnavailable,
				errs.WithMode(target.Name()),
				errs.WithMessage("monitoring endpoint failed to start"),
				errs.WithCause(err)))
		}
	}

	var connectErr error
	if target.Live() {
		if err := d.traderLocked().Assistant().Connect(ctx); err != nil {
			connectErr = errs.New(component, errs.CodeConnectivity,
				errs.WithMode(target.Name()),
				errs.WithMessage("venue connect failed"),
				errs.WithCause(err))
			d.sink.ReportError(connectErr)
		}
	}
	d.mu.Unlock()

	result := telemetry.ResultSuccess
	if connectErr != nil {
		result = telemetry.ResultError
	}
	d.recordTransition(ctx, from, target, result, start)
	observability.Log().Info("mode committed",
		observability.F("from", string(from)),
		observability.F("to", string(target)),
		observability.F("result", result))

	d.Notify(ctx, event.ModeChanged, target)
	return connectErr
}

func (d *Dispatcher) newClock(ctx context.Context) (*clock.Clock, error) {
	if d.clockFactory == nil {
		return nil, errs.New(component, errs.CodeConfiguration, errs.WithMessage("no clock factory configured"))
	}
	c, err := d.clockFactory(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errs.New(component, errs.CodeTimeSource, errs.WithMessage("clock factory returned no clock"))
	}
	return c, nil
}

func (d *Dispatcher) recordTransition(ctx context.Context, from, to mode.Mode, result string, start time.Time) {
	attrs := metric.WithAttributes(telemetry.TransitionAttributes(string(from), string(to), result)...)
	if d.transitionCounter != nil {
		d.transitionCounter.Add(ctx, 1, attrs)
	}
	if d.transitionLatency != nil {
		d.transitionLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
	}
}
