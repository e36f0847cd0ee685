package wire

// PeerType identifies the role a node plays in the cluster.
type PeerType uint32

const (
	// PeerTypeNone is the zero value; never valid on the wire.
	PeerTypeNone PeerType = 0

	// PeerTypeMonitor is a cluster monitor node.
	PeerTypeMonitor PeerType = 1

	// PeerTypeStore is a storage node.
	PeerTypeStore PeerType = 2

	// PeerTypeClient is an external client.
	PeerTypeClient PeerType = 3
)

// String returns the peer type name.
func (p PeerType) String() string {
	switch p {
	case PeerTypeMonitor:
		return "MONITOR"
	case PeerTypeStore:
		return "STORE"
	case PeerTypeClient:
		return "CLIENT"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether the peer type is one of the defined roles.
func (p PeerType) IsValid() bool {
	return p >= PeerTypeMonitor && p <= PeerTypeClient
}

// Protocol versions spoken to each peer type. Monitors speak a distinct
// protocol from data-path peers.
const (
	// MonitorProtocol is the protocol version used when either endpoint
	// is a monitor.
	MonitorProtocol uint32 = 13

	// StoreProtocol is the protocol version used between storage nodes
	// and clients.
	StoreProtocol uint32 = 24
)

// ProtocolVersion returns the protocol version an endpoint of type
// hostType speaks when talking to a peer of type peerType.
func ProtocolVersion(hostType, peerType PeerType) uint32 {
	if hostType == PeerTypeMonitor || peerType == PeerTypeMonitor {
		return MonitorProtocol
	}
	return StoreProtocol
}
