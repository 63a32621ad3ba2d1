package trader

import "context"

// Strategy is a running unit managed by the Assistant. Implementations own
// their trading logic; the assistant only sequences their lifecycle.
type Strategy interface {
	Name() string
	// Start begins the strategy once the venue session is available.
	Start(ctx context.Context) error
	// Stop cancels open orders and releases resources. It must honour ctx.
	Stop(ctx context.Context) error
}

// Connector is the venue session contract used by the assistant.
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Connected() bool
}
