package connection

import (
	"errors"
	"fmt"

	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// Connection errors.
var (
	// ErrConnectionClosed is returned by Send and Receive after the
	// connection has reached StateClosed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrAlreadyStarted is returned by Connect when the connection has
	// already been started.
	ErrAlreadyStarted = errors.New("connection already started")

	// ErrSessionReset indicates the peer lost our session state; the
	// local session was reset and queued messages were discarded.
	ErrSessionReset = errors.New("session reset by peer")

	// ErrReplaced indicates this connection was superseded by a new
	// connection from the same peer.
	ErrReplaced = errors.New("connection replaced")

	// ErrFeatureMismatch is a permanent handshake failure: the peers'
	// required feature sets are incompatible.
	ErrFeatureMismatch = errors.New("feature mismatch")

	// ErrProtocolMismatch is a permanent handshake failure: the peers
	// disagree on the protocol version for this peer-type pair.
	ErrProtocolMismatch = errors.New("protocol version mismatch")
)

// FaultError wraps the transport or protocol error that brought a
// session down, annotated with whether the connection will recover.
type FaultError struct {
	// Err is the underlying error.
	Err error

	// Recovering reports whether the connection is attempting
	// recovery (reconnect or standby) rather than closing.
	Recovering bool
}

func (e *FaultError) Error() string {
	if e.Recovering {
		return fmt.Sprintf("connection fault (recovering): %v", e.Err)
	}
	return fmt.Sprintf("connection fault: %v", e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }

// wireErr reports whether err is a protocol violation rather than a
// transient transport failure. Protocol violations do not heal on
// redial.
func wireErr(err error) bool {
	return errors.Is(err, wire.ErrProtocol)
}
