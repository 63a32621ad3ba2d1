// Package mode defines the process-wide operating modes of the trading platform.
package mode

import (
	"fmt"
	"strings"
)

// Mode identifies the trading-lifecycle state the process is in.
type Mode string

const (
	// Idle means no session is active.
	Idle Mode = "Idle"
	// Trade routes orders to the live venue.
	Trade Mode = "Trade"
	// ForwardTest runs strategies against live data with simulated fills.
	ForwardTest Mode = "ForwardTest"
	// BackTest replays historical data.
	BackTest Mode = "BackTest"
	// Optimization sweeps strategy parameters over historical data.
	Optimization Mode = "Optimization"
	// ClosingPositions unwinds open positions on the live venue.
	ClosingPositions Mode = "ClosingPositions"
)

var displayNames = map[Mode]string{
	Idle:             "Idle",
	Trade:            "Trading",
	ForwardTest:      "Forward Testing",
	BackTest:         "Back Testing",
	Optimization:     "Optimization",
	ClosingPositions: "Closing Positions",
}

// All returns every mode in declaration order.
func All() []Mode {
	return []Mode{Idle, Trade, ForwardTest, BackTest, Optimization, ClosingPositions}
}

// Valid reports whether m is one of the declared modes.
func (m Mode) Valid() bool {
	_, ok := displayNames[m]
	return ok
}

// Name returns the human-readable label used in reports.
func (m Mode) Name() string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return string(m)
}

func (m Mode) String() string {
	return string(m)
}

// Live reports whether the mode needs a network clock and a venue connection.
func (m Mode) Live() bool {
	switch m {
	case Trade, ForwardTest, ClosingPositions:
		return true
	default:
		return false
	}
}

// Parse resolves a mode from its identifier, ignoring case and surrounding space.
func Parse(raw string) (Mode, error) {
	trimmed := strings.TrimSpace(raw)
	for _, m := range All() {
		if strings.EqualFold(trimmed, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown mode %q", raw)
}

// UnmarshalText lets modes be decoded from config and flags.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalText renders the mode identifier.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}
