package wire

// Connect flags.
const (
	// FlagLossy marks a connection whose policy discards queued state
	// on fault instead of retransmitting.
	FlagLossy uint8 = 1 << 0

	// FlagSeqFollows on a READY reply announces that a SEQ frame
	// follows, continuing an interrupted session.
	FlagSeqFollows uint8 = 1 << 1
)

// ConnectRequest is the body of a CONNECT frame. The client sends one
// per handshake attempt; a single transport may carry several attempts
// (retry_session, retry_global, bad_authorizer).
type ConnectRequest struct {
	// SrcAddr and DstAddr identify the endpoints as the client sees
	// them. Length-prefixed strings on the wire.
	SrcAddr string
	DstAddr string

	// Features the client is able to negotiate.
	Features Features

	// HostType is the client's own role.
	HostType PeerType

	// GlobalSeq is the client's cluster-wide connection attempt
	// counter, used to order reconnection races.
	GlobalSeq uint32

	// ConnectSeq counts successful handshakes in this logical session;
	// zero for a fresh session.
	ConnectSeq uint32

	// ProtocolVersion the client speaks to this peer type.
	ProtocolVersion uint32

	// AuthProto identifies the authorizer scheme of the blob.
	AuthProto uint32

	// Flags carries FlagLossy.
	Flags uint8

	// Authorizer is the opaque credential blob verified by the auth
	// collaborator.
	Authorizer []byte
}

// ConnectReply is the body shared by every connect reply tag. Which
// fields are meaningful depends on the tag: RETRY_SESSION uses
// ConnectSeq, RETRY_GLOBAL uses GlobalSeq, READY uses all of them.
type ConnectReply struct {
	// Tag is the reply discriminator; not part of the body encoding.
	Tag Tag

	// Features is the negotiated set (READY) or the server's supported
	// set (FEATURES, for diagnostics).
	Features Features

	// GlobalSeq is the server's current global sequence.
	GlobalSeq uint32

	// ConnectSeq is the server's current connect sequence for this
	// session.
	ConnectSeq uint32

	// ProtocolVersion the server speaks to this peer type.
	ProtocolVersion uint32

	// Flags carries FlagLossy and FlagSeqFollows.
	Flags uint8

	// AuthorizerReply is the opaque reply blob from the auth
	// collaborator, e.g. a proof the server holds the shared secret.
	AuthorizerReply []byte
}
