// Package bridge contains the engine that links local pipes to a
// publish/subscribe broker: the routing tables, the coalescing buffer, the
// connection state machine and the supervisor that keeps the link alive.
package bridge

// State is the broker link state. It is owned by the ConnManager; the
// supervisor and publish/subscribe callers only read it.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type eventKind int

const (
	eventConnected eventKind = iota
	eventDisconnected
	eventMessage
	eventChannelData
)

// event is the single internal notification type. External transport
// callbacks enqueue events instead of doing work, so no lock is ever taken
// from a transport-owned goroutine beyond the queue itself.
type event struct {
	kind    eventKind
	code    int
	channel int
	topic   string
	payload []byte
}
