package connection

// Policy fixes a connection's reliability contract. It is chosen per
// peer type and never changes over the connection's lifetime.
type Policy struct {
	// Lossy connections drop all session state on the first fault:
	// queued messages are discarded and the connection closes.
	// Non-lossy connections preserve the session across transport loss
	// and redeliver unacked messages.
	Lossy bool `yaml:"lossy"`

	// Server marks the accepting side. A faulted non-lossy server
	// connection parks in standby and waits for the peer to
	// reconnect; the connecting side redials.
	Server bool `yaml:"server"`

	// ThrottleBytes caps the total unconsumed inbound payload bytes
	// held by this connection. Zero disables the throttle.
	ThrottleBytes int64 `yaml:"throttle_bytes"`
}

// LossyClient is the contract for ephemeral peers: drop on fault,
// never reconnect.
func LossyClient() Policy {
	return Policy{Lossy: true}
}

// LossyServer accepts ephemeral peers.
func LossyServer() Policy {
	return Policy{Lossy: true, Server: true}
}

// StatefulClient reconnects on fault and redelivers unacked messages.
func StatefulClient() Policy {
	return Policy{}
}

// StatefulServer preserves the session across peer reconnects.
func StatefulServer() Policy {
	return Policy{Server: true}
}
