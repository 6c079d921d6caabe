package agent

// State is the agent's broker connection state.
type State int32

const (
	// StateDisconnected is the initial state before Run.
	StateDisconnected State = iota

	// StateConnecting covers the broker handshake and command subscription.
	StateConnecting

	// StateConnected means a session is live and commands are accepted.
	StateConnected

	// StateReconnecting is the backoff wait after a failure.
	StateReconnecting

	// StateShuttingDown is terminal.
	StateShuttingDown
)

// String returns the state name used in logs, metrics and the status API.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}
