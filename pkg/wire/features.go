package wire

// Features is the negotiated capability bitmask of a session. The
// handshake intersects both sides' supported sets; the result is fixed
// for the lifetime of the session.
type Features uint64

// Feature bits.
const (
	// FeatureKeepalive2 enables timestamped keepalive probes.
	FeatureKeepalive2 Features = 1 << 0

	// FeatureReconnectSeq enables the SEQ exchange when continuing an
	// interrupted session, giving exactly-once delivery on reconnect.
	FeatureReconnectSeq Features = 1 << 1

	// FeatureMsgSigning enables footer signatures when session security
	// is active.
	FeatureMsgSigning Features = 1 << 2

	// FeaturePriority indicates the sender populates the message
	// priority field.
	FeaturePriority Features = 1 << 3
)

// SupportedFeatures is everything this implementation can negotiate.
const SupportedFeatures = FeatureKeepalive2 | FeatureReconnectSeq |
	FeatureMsgSigning | FeaturePriority

// RequiredFeatures must be present on both sides or the handshake fails
// with FEATURES.
const RequiredFeatures = FeatureKeepalive2 | FeatureReconnectSeq

// Contains reports whether all bits of want are set.
func (f Features) Contains(want Features) bool {
	return f&want == want
}
