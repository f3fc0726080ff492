// Package broker defines the minimal client capability the bridge consumes
// to talk to a publish/subscribe broker. Backends live in the mqtt and nats
// subpackages.
package broker

// Handlers receives connection lifecycle and message events from a backend.
// Callbacks run on transport-owned goroutines and must not block; the bridge
// turns them into typed events on its own event path.
type Handlers struct {
	// OnConnect is invoked when a connect attempt completes. A result code
	// of 0 means the session is established.
	OnConnect func(resultCode int)

	// OnDisconnect is invoked on voluntary disconnect or connection loss.
	OnDisconnect func(resultCode int)

	// OnMessage is invoked for every message delivered on a subscribed
	// topic. The payload slice must not be retained past the call.
	OnMessage func(topic string, payload []byte)
}

// Client is the minimal broker capability. Connect initiates a session
// without waiting for the handshake; completion is signaled through
// Handlers.OnConnect. The remaining operations fail when the session is
// not established.
type Client interface {
	Connect() error
	Disconnect()
	Publish(topic string, payload []byte, qos byte) error
	Subscribe(topic string, qos byte) error
	Unsubscribe(topic string) error
	IsConnected() bool
}
