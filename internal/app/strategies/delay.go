package strategies

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/coachpo/atomictrader/internal/observability"
)

const defaultCancelDelay = 500 * time.Millisecond

// Delay simulates a strategy whose order cancellation takes time to settle.
type Delay struct {
	name        string
	cancelDelay time.Duration
	running     atomic.Bool
}

// NewDelay constructs a Delay strategy. Non-positive delays fall back to the default.
func NewDelay(name string, cancelDelay time.Duration) *Delay {
	if cancelDelay <= 0 {
		cancelDelay = defaultCancelDelay
	}
	return &Delay{name: name, cancelDelay: cancelDelay}
}

// Name returns the registered strategy name.
func (s *Delay) Name() string { return s.name }

// Start marks the strategy running.
func (s *Delay) Start(context.Context) error {
	s.running.Store(true)
	return nil
}

// Stop waits for the simulated cancellation or for ctx to end.
func (s *Delay) Stop(ctx context.Context) error {
	timer := time.NewTimer(s.cancelDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		s.running.Store(false)
		observability.Log().Info("strategy orders cancelled",
			observability.F("strategy", s.name),
			observability.F("delay", s.cancelDelay.String()))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("strategy %s cancel: %w", s.name, ctx.Err())
	}
}

// Running reports whether the strategy is still active.
func (s *Delay) Running() bool { return s.running.Load() }
