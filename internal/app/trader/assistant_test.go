package trader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/domain/event"
)

type fakeConnector struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   int
}

func (f *fakeConnector) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeConnector) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeConnector) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

type notification struct {
	evt   event.Type
	value any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (r *recordingNotifier) Notify(_ context.Context, evt event.Type, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{evt: evt, value: value})
}

func (r *recordingNotifier) snapshot() []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notification(nil), r.events...)
}

type stubStrategy struct {
	name     string
	startErr error
	stopErr  error
	delay    time.Duration
	stopped  atomic.Int32
	panics   bool
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Start(context.Context) error { return s.startErr }

func (s *stubStrategy) Stop(ctx context.Context) error {
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.stopped.Add(1)
	return s.stopErr
}

func TestConnectPublishesConnectionChangedOnce(t *testing.T) {
	conn := &fakeConnector{}
	notifier := &recordingNotifier{}
	tr := New(conn, notifier)

	if err := tr.Assistant().Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := tr.Assistant().Connect(context.Background()); err != nil {
		t.Fatalf("second connect: %v", err)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].evt != event.ConnectionChanged || events[0].value != true {
		t.Fatalf("expected single connection event, got %+v", events)
	}
	if !tr.Assistant().Connected() {
		t.Fatalf("expected assistant to report connected")
	}
}

func TestConnectFailurePropagates(t *testing.T) {
	failure := errs.New("venue", errs.CodeConnectivity)
	conn := &fakeConnector{connectErr: failure}
	notifier := &recordingNotifier{}
	tr := New(conn, notifier)

	err := tr.Assistant().Connect(context.Background())
	if !errs.HasCode(err, errs.CodeConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if len(notifier.snapshot()) != 0 {
		t.Fatalf("no event expected on failed connect")
	}
}

func TestConnectWithoutConnector(t *testing.T) {
	tr := New(nil, nil)
	if err := tr.Assistant().Connect(context.Background()); !errs.HasCode(err, errs.CodeConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if err := tr.Assistant().Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect without connector: %v", err)
	}
}

func TestDisconnectPublishesWhenPreviouslyConnected(t *testing.T) {
	conn := &fakeConnector{connected: true}
	notifier := &recordingNotifier{}
	tr := New(conn, notifier)

	if err := tr.Assistant().Disconnect(context.Background()); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].value != false {
		t.Fatalf("expected disconnected event, got %+v", events)
	}
}

func TestAddStrategyRejectsDuplicatesAndNil(t *testing.T) {
	notifier := &recordingNotifier{}
	a := New(&fakeConnector{}, notifier).Assistant()

	if err := a.AddStrategy(context.Background(), nil); !errs.HasCode(err, errs.CodeConfiguration) {
		t.Fatalf("expected configuration error for nil strategy, got %v", err)
	}
	if err := a.AddStrategy(context.Background(), &stubStrategy{name: "Alpha"}); err != nil {
		t.Fatalf("add alpha: %v", err)
	}
	if err := a.AddStrategy(context.Background(), &stubStrategy{name: "alpha"}); !errs.HasCode(err, errs.CodeConfiguration) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if got := a.Strategies(); len(got) != 1 || got[0] != "alpha" {
		t.Fatalf("unexpected strategies %v", got)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].evt != event.StrategyAdded || events[0].value != "alpha" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestAddStrategyReleasesSlotOnStartFailure(t *testing.T) {
	a := New(nil, nil).Assistant()
	startErr := errors.New("no market data")
	if err := a.AddStrategy(context.Background(), &stubStrategy{name: "beta", startErr: startErr}); !errors.Is(err, startErr) {
		t.Fatalf("expected start error, got %v", err)
	}
	if len(a.Strategies()) != 0 {
		t.Fatalf("failed strategy must not be tracked")
	}
	if err := a.AddStrategy(context.Background(), &stubStrategy{name: "beta"}); err != nil {
		t.Fatalf("retry add: %v", err)
	}
}

func TestRemoveStrategy(t *testing.T) {
	notifier := &recordingNotifier{}
	a := New(nil, notifier).Assistant()
	s := &stubStrategy{name: "gamma"}
	if err := a.AddStrategy(context.Background(), s); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := a.RemoveStrategy(context.Background(), "GAMMA"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if s.stopped.Load() != 1 {
		t.Fatalf("expected strategy to be stopped")
	}
	if err := a.RemoveStrategy(context.Background(), "gamma"); !errs.HasCode(err, errs.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	events := notifier.snapshot()
	if events[len(events)-1].evt != event.StrategyRemoved {
		t.Fatalf("expected strategy removed event, got %+v", events)
	}
}

func TestRemoveAllStrategiesStopsInParallel(t *testing.T) {
	notifier := &recordingNotifier{}
	a := New(nil, notifier).Assistant()
	strategies := make([]*stubStrategy, 0, 4)
	for _, name := range []string{"a", "b", "c", "d"} {
		s := &stubStrategy{name: name, delay: 100 * time.Millisecond}
		strategies = append(strategies, s)
		if err := a.AddStrategy(context.Background(), s); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}

	start := time.Now()
	if err := a.RemoveAllStrategies(context.Background()); err != nil {
		t.Fatalf("remove all: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 350*time.Millisecond {
		t.Fatalf("expected parallel unwind, took %s", elapsed)
	}
	for _, s := range strategies {
		if s.stopped.Load() != 1 {
			t.Fatalf("strategy %s not stopped", s.name)
		}
	}
	if len(a.Strategies()) != 0 {
		t.Fatalf("expected no strategies after unwind")
	}
	events := notifier.snapshot()
	last := events[len(events)-1]
	if last.evt != event.StrategiesCleared || last.value != 4 {
		t.Fatalf("expected cleared event with count, got %+v", last)
	}
}

func TestRemoveAllStrategiesAggregatesFailures(t *testing.T) {
	a := New(nil, nil).Assistant()
	stopErr := errors.New("cancel rejected")
	_ = a.AddStrategy(context.Background(), &stubStrategy{name: "ok"})
	_ = a.AddStrategy(context.Background(), &stubStrategy{name: "bad", stopErr: stopErr})
	_ = a.AddStrategy(context.Background(), &stubStrategy{name: "panicky", panics: true})

	err := a.RemoveAllStrategies(context.Background())
	if err == nil {
		t.Fatalf("expected aggregated error")
	}
	if !errors.Is(err, stopErr) {
		t.Fatalf("expected stop error in aggregate, got %v", err)
	}
	if len(a.Strategies()) != 0 {
		t.Fatalf("strategies must be cleared even on failure")
	}
}

func TestRemoveAllStrategiesEmpty(t *testing.T) {
	notifier := &recordingNotifier{}
	a := New(nil, notifier).Assistant()
	if err := a.RemoveAllStrategies(context.Background()); err != nil {
		t.Fatalf("remove all on empty: %v", err)
	}
	events := notifier.snapshot()
	if len(events) != 1 || events[0].value != 0 {
		t.Fatalf("expected cleared event with zero count, got %+v", events)
	}
}
