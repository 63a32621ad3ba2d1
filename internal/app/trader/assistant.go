package trader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/domain/event"
	"github.com/coachpo/atomictrader/internal/observability"
)

const component = "trader"

const defaultUnwindWorkers = 8

// AssistantOption customises the assistant.
type AssistantOption func(*Assistant)

// WithUnwindWorkers bounds the number of strategies stopped in parallel.
func WithUnwindWorkers(n int) AssistantOption {
	return func(a *Assistant) {
		if n > 0 {
			a.unwindWorkers = n
		}
	}
}

// Assistant manages strategies and the venue connection for a Trader.
type Assistant struct {
	connector     Connector
	notifier      Notifier
	unwindWorkers int

	mu         sync.Mutex
	strategies map[string]Strategy
}

func newAssistant(connector Connector, notifier Notifier, opts ...AssistantOption) *Assistant {
	a := &Assistant{
		connector:     connector,
		notifier:      notifier,
		unwindWorkers: defaultUnwindWorkers,
		strategies:    make(map[string]Strategy),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Connect opens the venue session. Connecting an open session is a no-op.
func (a *Assistant) Connect(ctx context.Context) error {
	if a.connector == nil {
		return errs.New(component, errs.CodeConnectivity, errs.WithMessage("no venue connector configured"))
	}
	wasConnected := a.connector.Connected()
	if err := a.connector.Connect(ctx); err != nil {
		return err
	}
	if !wasConnected {
		a.notify(ctx, event.ConnectionChanged, true)
	}
	return nil
}

// Disconnect closes the venue session.
func (a *Assistant) Disconnect(ctx context.Context) error {
	if a.connector == nil {
		return nil
	}
	wasConnected := a.connector.Connected()
	if err := a.connector.Disconnect(ctx); err != nil {
		return err
	}
	if wasConnected {
		a.notify(ctx, event.ConnectionChanged, false)
	}
	return nil
}

// Connected reports the venue session state.
func (a *Assistant) Connected() bool {
	return a.connector != nil && a.connector.Connected()
}

// AddStrategy starts s and tracks it under its name.
func (a *Assistant) AddStrategy(ctx context.Context, s Strategy) error {
	if s == nil {
		return errs.New(component, errs.CodeConfiguration, errs.WithMessage("no strategy selected"))
	}
	name := normalizeName(s.Name())
	if name == "" {
		return errs.New(component, errs.CodeConfiguration, errs.WithMessage("strategy name required"))
	}

	a.mu.Lock()
	if _, exists := a.strategies[name]; exists {
		a.mu.Unlock()
		return errs.New(component, errs.CodeConfiguration,
			errs.WithMessage("strategy already running"),
			errs.WithField("strategy", name))
	}
	// Reserve the slot so concurrent adds of the same name fail fast.
	a.strategies[name] = s
	a.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		a.mu.Lock()
		delete(a.strategies, name)
		a.mu.Unlock()
		return fmt.Errorf("start strategy %s: %w", name, err)
	}
	a.notify(ctx, event.StrategyAdded, name)
	return nil
}

// RemoveStrategy stops and forgets the named strategy.
func (a *Assistant) RemoveStrategy(ctx context.Context, name string) error {
	key := normalizeName(name)
	a.mu.Lock()
	s, ok := a.strategies[key]
	if ok {
		delete(a.strategies, key)
	}
	a.mu.Unlock()
	if !ok {
		return errs.New(component, errs.CodeNotFound,
			errs.WithMessage("strategy not running"),
			errs.WithField("strategy", key))
	}
	if err := s.Stop(ctx); err != nil {
		return fmt.Errorf("stop strategy %s: %w", key, err)
	}
	a.notify(ctx, event.StrategyRemoved, key)
	return nil
}

// RemoveAllStrategies stops every tracked strategy in parallel and returns
// once all of them have stopped. Failures are aggregated.
func (a *Assistant) RemoveAllStrategies(ctx context.Context) error {
	a.mu.Lock()
	running := make([]Strategy, 0, len(a.strategies))
	for _, s := range a.strategies {
		running = append(running, s)
	}
	a.strategies = make(map[string]Strategy)
	a.mu.Unlock()

	if len(running) == 0 {
		a.notify(ctx, event.StrategiesCleared, 0)
		return nil
	}

	var mu sync.Mutex
	var stopErrs []error
	p := pool.New().WithMaxGoroutines(min(a.unwindWorkers, len(running)))
	for _, strategy := range running {
		s := strategy
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					stopErrs = append(stopErrs, fmt.Errorf("strategy %s panic: %v", s.Name(), r))
					mu.Unlock()
				}
			}()
			if err := s.Stop(ctx); err != nil {
				mu.Lock()
				stopErrs = append(stopErrs, fmt.Errorf("strategy %s: %w", s.Name(), err))
				mu.Unlock()
			}
		})
	}
	p.Wait()

	a.notify(ctx, event.StrategiesCleared, len(running))
	return observability.AggregateErrors("remove all strategies", stopErrs,
		observability.F("strategy_count", len(running)))
}

// Strategies returns the names of running strategies, sorted.
func (a *Assistant) Strategies() []string {
	a.mu.Lock()
	names := make([]string, 0, len(a.strategies))
	for name := range a.strategies {
		names = append(names, name)
	}
	a.mu.Unlock()
	sort.Strings(names)
	return names
}

func (a *Assistant) notify(ctx context.Context, evt event.Type, value any) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(ctx, evt, value)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
