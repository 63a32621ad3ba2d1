package strategies

import (
	"context"
	"sync/atomic"

	"github.com/coachpo/atomictrader/internal/observability"
)

// NoOp holds no positions and places no orders. It is useful for wiring checks.
type NoOp struct {
	name    string
	running atomic.Bool
}

// NewNoOp constructs a NoOp registered under name.
func NewNoOp(name string) *NoOp {
	return &NoOp{name: name}
}

// Name returns the registered strategy name.
func (s *NoOp) Name() string { return s.name }

// Start marks the strategy running.
func (s *NoOp) Start(context.Context) error {
	s.running.Store(true)
	observability.Log().Info("strategy started", observability.F("strategy", s.name))
	return nil
}

// Stop marks the strategy stopped.
func (s *NoOp) Stop(context.Context) error {
	s.running.Store(false)
	observability.Log().Info("strategy stopped", observability.F("strategy", s.name))
	return nil
}

// Running reports whether Start has been called without a matching Stop.
func (s *NoOp) Running() bool { return s.running.Load() }
