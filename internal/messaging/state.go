package messaging

// State is the lifecycle state of the broker connection.
type State int

const (
	// StateDisconnected means no session exists and none is being attempted.
	StateDisconnected State = iota

	// StateConnecting means a first handshake is in flight.
	StateConnecting

	// StateConnected means a session is up and all deferred work has been flushed.
	StateConnected

	// StateReconnecting means the session was lost (or the first handshake
	// failed) and the backoff loop is retrying.
	StateReconnecting

	// StateClosed is terminal.
	StateClosed
)

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
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// StateChange describes one transition. Err is the cause when the
// transition was triggered by a failure.
type StateChange struct {
	From State
	To   State
	Err  error
}
