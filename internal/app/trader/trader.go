// Package trader exposes the process-lifetime trading session handle and its assistant.
package trader

import (
	"context"

	"github.com/coachpo/atomictrader/internal/domain/event"
)

// Notifier receives model change notifications raised by the assistant.
type Notifier interface {
	Notify(ctx context.Context, evt event.Type, value any)
}

// Trader represents the active trading session and the strategies running in it.
type Trader struct {
	assistant *Assistant
}

// New constructs a trader whose assistant connects through connector and
// publishes changes through notifier. A nil notifier discards notifications.
func New(connector Connector, notifier Notifier, opts ...AssistantOption) *Trader {
	return &Trader{assistant: newAssistant(connector, notifier, opts...)}
}

// Assistant returns the strategy-management and venue-connection capability.
func (t *Trader) Assistant() *Assistant {
	return t.assistant
}
