package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coachpo/atomictrader/internal/app/trader"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/infra/clock"
	"github.com/coachpo/atomictrader/internal/infra/report"
	"github.com/coachpo/atomictrader/internal/testutil"
)

type fixedQuerier struct{}

func (fixedQuerier) Offset(context.Context, string, time.Duration) (time.Duration, error) {
	return 3 * time.Millisecond, nil
}

type countingClock struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingClock) factory(ctx context.Context) (*clock.Clock, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return nil, errors.New("ntp: i/o timeout")
	}
	return clock.New(ctx, clock.Config{Servers: []string{"time.test"}, MaxAttempts: 1}, fixedQuerier{})
}

type countingMonitor struct {
	starts atomic.Int32
	err    error
}

func (m *countingMonitor) Start() error {
	m.starts.Add(1)
	return m.err
}

type fakeConnector struct {
	connects    atomic.Int32
	disconnects atomic.Int32
	connected   atomic.Bool
	err         error
}

func (f *fakeConnector) Connect(context.Context) error {
	f.connects.Add(1)
	if f.err != nil {
		return f.err
	}
	f.connected.Store(true)
	return nil
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.disconnects.Add(1)
	f.connected.Store(false)
	return nil
}

func (f *fakeConnector) Connected() bool { return f.connected.Load() }

type blockingStrategy struct {
	name    string
	release chan struct{}
	stops   atomic.Int32
}

func (s *blockingStrategy) Name() string                { return s.name }
func (s *blockingStrategy) Start(context.Context) error { return nil }
func (s *blockingStrategy) Stop(context.Context) error {
	s.stops.Add(1)
	if s.release != nil {
		<-s.release
	}
	return nil
}

type recordingListener struct {
	mu     sync.Mutex
	events []event.Type
	values []any
	err    error
	panics bool
}

func (l *recordingListener) ModelChanged(_ context.Context, evt event.Type, value any) error {
	l.mu.Lock()
	l.events = append(l.events, evt)
	l.values = append(l.values, value)
	l.mu.Unlock()
	if l.panics {
		panic("listener exploded")
	}
	return l.err
}

func (l *recordingListener) count(evt event.Type) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == evt {
			n++
		}
	}
	return n
}

type exitRecorder struct {
	mu    sync.Mutex
	codes []int
	done  chan struct{}
}

func newExitRecorder() *exitRecorder {
	return &exitRecorder{done: make(chan struct{}, 4)}
}

func (e *exitRecorder) exit(code int) {
	e.mu.Lock()
	e.codes = append(e.codes, code)
	e.mu.Unlock()
	e.done <- struct{}{}
}

func (e *exitRecorder) snapshot() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

type harness struct {
	d         *Dispatcher
	sink      *report.Sink
	clock     *countingClock
	monitor   *countingMonitor
	connector *fakeConnector
	exits     *exitRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sink:      report.New(report.Config{RecentBuffer: 64}, testutil.NewRecordingLogger()),
		clock:     &countingClock{},
		monitor:   &countingMonitor{},
		connector: &fakeConnector{},
		exits:     newExitRecorder(),
	}
	h.d = New(Options{
		Sink:    h.sink,
		Clock:   h.clock.factory,
		Monitor: h.monitor,
		Trader: func(n trader.Notifier) *trader.Trader {
			return trader.New(h.connector, n)
		},
		GracePeriod: 200 * time.Millisecond,
		Exit:        h.exits.exit,
	})
	return h
}
