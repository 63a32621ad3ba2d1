package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/domain/mode"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
	"github.com/coachpo/atomictrader/internal/observability"
)

// RequestShutdown unwinds the active trading session and terminates the
// process. With no trader or in Idle mode it exits immediately. Otherwise
// every strategy is removed and the venue disconnected; if that does not
// finish within the grace period the process is forced down with code 1.
// Only the first call has any effect.
func (d *Dispatcher) RequestShutdown(ctx context.Context) {
	if !d.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	t := d.ActiveTrader()
	if t == nil || d.Mode() == mode.Idle {
		observability.Log().Info("shutdown requested with no active session")
		d.recordShutdown(ctx, telemetry.ResultSuccess)
		d.exit(0)
		return
	}

	unwindCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.grace)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		assistant := t.Assistant()
		err := assistant.RemoveAllStrategies(unwindCtx)
		if derr := assistant.Disconnect(unwindCtx); derr != nil {
			err = errors.Join(err, derr)
		}
		done <- err
	}()

	timer := time.NewTimer(d.grace)
	defer timer.Stop()

	select {
	case err := <-done:
		d.recordUnwind(ctx, start)
		if err != nil {
			d.sink.ReportError(errs.New(component, errs.CodeUnavailable,
				errs.WithMode(d.Mode().Name()),
				errs.WithMessage("session unwind finished with errors"),
				errs.WithCause(err)))
		}
		observability.Log().Info("session unwound", observability.F("elapsed", time.Since(start).String()))
		d.recordShutdown(ctx, telemetry.ResultSuccess)
		d.exit(0)
	case <-timer.C:
		d.sink.ReportError(errs.New(component, errs.CodeUnavailable,
			errs.WithMode(d.Mode().Name()),
			errs.WithMessage("session unwind exceeded grace period, forcing exit"),
			errs.WithField("grace_period", d.grace.String())))
		d.recordShutdown(ctx, telemetry.ResultTimeout)
		d.exit(1)
	}
}

func (d *Dispatcher) recordUnwind(ctx context.Context, start time.Time) {
	if d.unwindLatency == nil {
		return
	}
	d.unwindLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0)
}

func (d *Dispatcher) recordShutdown(ctx context.Context, result string) {
	if d.shutdownCounter == nil {
		return
	}
	d.shutdownCounter.Add(ctx, 1,
		metric.WithAttributes(telemetry.OperationResultAttributes("shutdown", result)...))
}
