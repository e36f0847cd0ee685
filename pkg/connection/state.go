package connection

// State represents the connection lifecycle state.
type State uint8

const (
	// StateNone indicates the connection has not been started.
	StateNone State = iota

	// StateConnecting indicates a handshake is in progress, including
	// backoff waits between reconnect attempts.
	StateConnecting

	// StateOpen indicates an established session with a live
	// transport.
	StateOpen

	// StateStandby indicates the session is intact but the transport
	// is gone; the accepting side parks here until the peer
	// reconnects.
	StateStandby

	// StateWait indicates this side lost a simultaneous-connect race
	// and is waiting for the peer's connect to arrive.
	StateWait

	// StateClosed indicates the connection is permanently down.
	StateClosed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateStandby:
		return "STANDBY"
	case StateWait:
		return "WAIT"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
