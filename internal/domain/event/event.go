// Package event defines the typed notifications fanned out to model listeners.
package event

// Type tags a model change notification.
type Type string

const (
	// ModeChanged carries the newly committed mode.Mode.
	ModeChanged Type = "mode_changed"
	// StrategyAdded carries the strategy name.
	StrategyAdded Type = "strategy_added"
	// StrategyRemoved carries the strategy name.
	StrategyRemoved Type = "strategy_removed"
	// StrategiesCleared carries the number of strategies unwound.
	StrategiesCleared Type = "strategies_cleared"
	// ConnectionChanged carries the venue connection state as a bool.
	ConnectionChanged Type = "connection_changed"
)

func (t Type) String() string {
	return string(t)
}
