package wire

// Banner is exchanged by both sides immediately after the transport is
// established, before any tagged frame. It pins the protocol family and
// the banner revision.
const Banner = "msgr v010"

// BannerLen is the exact number of banner bytes on the wire.
const BannerLen = len(Banner)

// Tag is the single-byte discriminator identifying a frame type.
type Tag uint8

// Wire tags. Stable protocol constants; values must match the peer
// implementation bit-for-bit.
const (
	// TagReady is the connect reply accepting the session.
	TagReady Tag = 0x01

	// TagResetSession is the connect reply indicating the server has no
	// memory of the session; the client must restart as a fresh session.
	TagResetSession Tag = 0x02

	// TagWait is the connect reply telling the client to stand down and
	// wait for the peer's own connection attempt to land.
	TagWait Tag = 0x03

	// TagRetrySession is the connect reply carrying the server's current
	// connect_seq; the client retries with a newer one.
	TagRetrySession Tag = 0x04

	// TagRetryGlobal is the connect reply carrying the server's current
	// global_seq; the client retries with a newer one.
	TagRetryGlobal Tag = 0x05

	// TagClose announces an orderly close of the session.
	TagClose Tag = 0x06

	// TagMsg introduces a data message: header, segments, footer.
	TagMsg Tag = 0x07

	// TagAck carries the highest message sequence number received.
	// Acks are cumulative.
	TagAck Tag = 0x08

	// TagBadProtoVersion is the connect reply rejecting the client's
	// protocol version.
	TagBadProtoVersion Tag = 0x0a

	// TagBadAuthorizer is the connect reply rejecting the authorizer
	// blob. The client may retry once with a refreshed authorizer.
	TagBadAuthorizer Tag = 0x0b

	// TagFeatures is the connect reply rejecting the handshake because
	// the feature sets are incompatible.
	TagFeatures Tag = 0x0c

	// TagSeq carries the sequence number of the last message received,
	// exchanged when an interrupted session is continued.
	TagSeq Tag = 0x0d

	// TagKeepalive2 is a liveness probe carrying the sender's timestamp.
	TagKeepalive2 Tag = 0x0e

	// TagKeepalive2Ack echoes a probe, carrying the receiver's timestamp.
	TagKeepalive2Ack Tag = 0x0f

	// TagConnect introduces a connect request.
	TagConnect Tag = 0x11
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagReady:
		return "READY"
	case TagResetSession:
		return "RESETSESSION"
	case TagWait:
		return "WAIT"
	case TagRetrySession:
		return "RETRY_SESSION"
	case TagRetryGlobal:
		return "RETRY_GLOBAL"
	case TagClose:
		return "CLOSE"
	case TagMsg:
		return "MSG"
	case TagAck:
		return "ACK"
	case TagBadProtoVersion:
		return "BAD_PROTO_VERSION"
	case TagBadAuthorizer:
		return "BAD_AUTHORIZER"
	case TagFeatures:
		return "FEATURES"
	case TagSeq:
		return "SEQ"
	case TagKeepalive2:
		return "KEEPALIVE2"
	case TagKeepalive2Ack:
		return "KEEPALIVE2_ACK"
	case TagConnect:
		return "CONNECT"
	default:
		return "UNKNOWN"
	}
}

// IsConnectReply reports whether the tag is a valid reply to a connect
// request.
func (t Tag) IsConnectReply() bool {
	switch t {
	case TagReady, TagResetSession, TagWait, TagRetrySession,
		TagRetryGlobal, TagBadProtoVersion, TagBadAuthorizer, TagFeatures:
		return true
	default:
		return false
	}
}
