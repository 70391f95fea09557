package mqtt

// State describes the connection lifecycle of a Client.
//
// Transitions:
//
//	disconnected → connecting → connected
//	connected → reconnecting → connected   (auto-reconnect enabled)
//	connected → disconnected               (auto-reconnect disabled, or Close)
//
// StateFailed is never set by the Client itself. It is the terminal
// verdict of an external supervisor that has exhausted its retry
// budget, and is included here so all connection owners report status
// from one vocabulary.
type State string

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = "disconnected"

	// StateConnecting means the initial connection attempt is in progress.
	StateConnecting State = "connecting"

	// StateConnected means the client is connected and operational.
	StateConnected State = "connected"

	// StateReconnecting means the connection was lost and the client is
	// retrying in the background.
	StateReconnecting State = "reconnecting"

	// StateFailed means a bounded retry budget was exhausted and no
	// further attempts will be made without an external restart.
	StateFailed State = "failed"
)

// Status is a point-in-time snapshot of a connection for health and
// introspection endpoints.
type Status struct {
	State         State    `json:"state"`
	Broker        string   `json:"broker"`
	ClientID      string   `json:"client_id"`
	Subscriptions []string `json:"subscriptions"`
}
