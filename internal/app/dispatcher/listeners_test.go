package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/domain/mode"
)

func TestRegisterIsIdempotent(t *testing.T) {
	h := newHarness(t)
	l := &recordingListener{}
	h.d.Register(l)
	h.d.Register(l)
	h.d.Register(nil)
	require.Equal(t, 1, h.d.Listeners())

	h.d.Notify(context.Background(), event.ModeChanged, mode.Idle)
	require.Equal(t, 1, l.count(event.ModeChanged))
}

func TestUnregister(t *testing.T) {
	h := newHarness(t)
	a, b := &recordingListener{}, &recordingListener{}
	h.d.Register(a)
	h.d.Register(b)
	h.d.Unregister(a)
	h.d.Unregister(&recordingListener{})
	require.Equal(t, 1, h.d.Listeners())

	h.d.Notify(context.Background(), event.ModeChanged, mode.Idle)
	require.Zero(t, a.count(event.ModeChanged))
	require.Equal(t, 1, b.count(event.ModeChanged))
}

func TestFailingListenerIsIsolated(t *testing.T) {
	h := newHarness(t)
	first := &recordingListener{}
	second := &recordingListener{err: errors.New("render failed")}
	third := &recordingListener{}
	h.d.Register(first)
	h.d.Register(second)
	h.d.Register(third)

	h.d.Notify(context.Background(), event.ModeChanged, mode.Trade)

	require.Equal(t, 1, first.count(event.ModeChanged))
	require.Equal(t, 1, second.count(event.ModeChanged))
	require.Equal(t, 1, third.count(event.ModeChanged))
	failures := h.sink.Errors()
	require.Len(t, failures, 1)
	require.Equal(t, errs.CodeListener, failures[0].Code)
}

func TestPanickingListenerIsIsolated(t *testing.T) {
	h := newHarness(t)
	first := &recordingListener{}
	second := &recordingListener{panics: true}
	third := &recordingListener{}
	h.d.Register(first)
	h.d.Register(second)
	h.d.Register(third)

	require.NotPanics(t, func() {
		h.d.Notify(context.Background(), event.StrategyAdded, "noop")
	})
	require.Equal(t, 1, first.count(event.StrategyAdded))
	require.Equal(t, 1, third.count(event.StrategyAdded))
	require.Len(t, h.sink.Errors(), 1)
}

func TestListenerErrorsAreRecordedWhileReportingDisabled(t *testing.T) {
	h := newHarness(t)
	h.d.Register(&recordingListener{err: errors.New("stale view")})
	require.NoError(t, h.d.SetMode(context.Background(), mode.Optimization))
	require.False(t, h.sink.Enabled())
	require.Len(t, h.sink.Errors(), 1)
}

type selfRemovingListener struct {
	d     *Dispatcher
	calls int
}

func (l *selfRemovingListener) ModelChanged(context.Context, event.Type, any) error {
	l.calls++
	l.d.Unregister(l)
	return nil
}

func TestListenerMayUnregisterDuringDelivery(t *testing.T) {
	h := newHarness(t)
	self := &selfRemovingListener{d: h.d}
	after := &recordingListener{}
	h.d.Register(self)
	h.d.Register(after)

	h.d.Notify(context.Background(), event.ModeChanged, mode.Idle)
	h.d.Notify(context.Background(), event.ModeChanged, mode.Idle)

	require.Equal(t, 1, self.calls)
	require.Equal(t, 2, after.count(event.ModeChanged))
}

func TestTraderEventsReachListeners(t *testing.T) {
	h := newHarness(t)
	l := &recordingListener{}
	h.d.Register(l)
	strategy := &blockingStrategy{name: "noop"}

	require.NoError(t, h.d.Trader().Assistant().AddStrategy(context.Background(), strategy))
	require.NoError(t, h.d.Trader().Assistant().RemoveStrategy(context.Background(), "noop"))
	require.Equal(t, 1, l.count(event.StrategyAdded))
	require.Equal(t, 1, l.count(event.StrategyRemoved))
}
