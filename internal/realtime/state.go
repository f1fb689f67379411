package realtime

// State is the agent's single authoritative connection state.
type State int

const (
	// StateIdle: no transport, no polling, waiting for a subscriber.
	StateIdle State = iota
	// StateConnecting: a dial is in flight.
	StateConnecting
	// StateConnected: the stream is open and delivering events.
	StateConnected
	// StateReconnecting: the transport dropped, a delayed retry is scheduled.
	StateReconnecting
	// StatePolling: degraded mode, periodic full-collection refetch.
	StatePolling
	// StateClosed: explicitly disconnected; only Connect leaves this state.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
