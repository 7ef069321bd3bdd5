package bridge

import "github.com/sosnet/realtime/src/types"

// Bridge relays deliveries between relay instances so that a user
// connected to one instance receives events emitted on another.
type Bridge interface {
	// Publish sends a delivery to all other instances.
	Publish(d types.Delivery) error

	// Start begins listening for deliveries from other instances.
	Start() error

	// Stop shuts down the bridge connection.
	Stop() error

	// Available reports whether the bridge is connected and operational.
	Available() bool
}

// BroadcastTarget is implemented by the Hub to receive bridged deliveries.
type BroadcastTarget interface {
	BroadcastToLocal(d types.Delivery)
}
