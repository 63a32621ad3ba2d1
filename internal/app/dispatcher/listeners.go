package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/infra/telemetry"
)

// Listener observes model changes. Implementations run on the notifying
// goroutine and should return quickly. ConnectionChanged is delivered while a
// transition is in progress, so a listener must not call SetMode in response
// to it.
type Listener interface {
	ModelChanged(ctx context.Context, evt event.Type, value any) error
}

// Register adds l. Registering the same listener twice has no effect.
func (d *Dispatcher) Register(l Listener) {
	if l == nil {
		return
	}
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for _, existing := range d.listeners {
		if existing == l {
			return
		}
	}
	d.listeners = append(d.listeners, l)
}

// Unregister removes l if present.
func (d *Dispatcher) Unregister(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	for i, existing := range d.listeners {
		if existing == l {
			d.listeners = append(d.listeners[:i:i], d.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the number of registered listeners.
func (d *Dispatcher) Listeners() int {
	d.listenersMu.RLock()
	defer d.listenersMu.RUnlock()
	return len(d.listeners)
}

// Notify delivers evt to a snapshot of the registered listeners in
// registration order. A failing listener is reported to the sink and
// delivery continues with the next one.
func (d *Dispatcher) Notify(ctx context.Context, evt event.Type, value any) {
	d.listenersMu.RLock()
	snapshot := make([]Listener, len(d.listeners))
	copy(snapshot, d.listeners)
	d.listenersMu.RUnlock()

	start := time.Now()
	for _, l := range snapshot {
		if err := deliver(ctx, l, evt, value); err != nil {
			d.sink.ReportError(errs.New(component, errs.CodeListener,
				errs.WithMessage("listener failed"),
				errs.WithField("event", evt.String()),
				errs.WithField("listener", fmt.Sprintf("%T", l)),
				errs.WithCause(err)))
			if d.listenerFailures != nil {
				d.listenerFailures.Add(ctx, 1,
					metric.WithAttributes(telemetry.NotifyAttributes(evt.String())...))
			}
		}
	}
	if d.notifyLatency != nil {
		d.notifyLatency.Record(ctx, float64(time.Since(start).Microseconds())/1000.0,
			metric.WithAttributes(telemetry.NotifyAttributes(evt.String())...))
	}
}

func deliver(ctx context.Context, l Listener, evt event.Type, value any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.ModelChanged(ctx, evt, value)
}
