package strategies

import (
	"sort"
	"strings"
	"sync"

	"github.com/coachpo/atomictrader/errs"
	"github.com/coachpo/atomictrader/internal/app/trader"
)

// Factory builds a strategy instance.
type Factory func() trader.Strategy

type entry struct {
	meta    Metadata
	factory Factory
}

// Registry maps strategy names to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// DefaultRegistry returns a registry pre-populated with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(Metadata{
		Name:        "noop",
		DisplayName: "No-Op",
		Description: "Holds no positions and places no orders.",
	}, func() trader.Strategy { return NewNoOp("noop") })
	_ = r.Register(Metadata{
		Name:        "delay",
		DisplayName: "Delayed Cancel",
		Description: "Simulates slow order cancellation when stopped.",
		Config: []ConfigField{{
			Name:        "cancel_delay",
			Type:        "duration",
			Description: "Time taken to cancel open orders",
			Default:     defaultCancelDelay.String(),
		}},
	}, func() trader.Strategy { return NewDelay("delay", defaultCancelDelay) })
	return r
}

// Register adds a factory under meta.Name.
func (r *Registry) Register(meta Metadata, factory Factory) error {
	name := strings.ToLower(strings.TrimSpace(meta.Name))
	if name == "" || factory == nil {
		return errs.New("strategies", errs.CodeInvalid, errs.WithMessage("strategy name and factory required"))
	}
	meta.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return errs.New("strategies", errs.CodeInvalid,
			errs.WithMessage("strategy already registered"),
			errs.WithField("strategy", name))
	}
	r.entries[name] = entry{meta: CloneMetadata(meta), factory: factory}
	return nil
}

// Create instantiates the named strategy.
func (r *Registry) Create(name string) (trader.Strategy, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New("strategies", errs.CodeNotFound,
			errs.WithMessage("unknown strategy"),
			errs.WithField("strategy", key))
	}
	return e.factory(), nil
}

// Catalog lists registered strategy metadata sorted by name.
func (r *Registry) Catalog() []Metadata {
	r.mu.RLock()
	out := make([]Metadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, CloneMetadata(e.meta))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
