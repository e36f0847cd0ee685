// Package wire implements the on-wire format of the msgr session
// protocol: the banner, frame tags, connect request/reply, and the
// message header/segments/footer layout.
//
// All multi-byte fields are big-endian. Frames are fixed-layout prefix
// structures: a one-byte tag followed by a tag-specific fixed or
// length-prefixed body. The encoding here must match the peer
// implementation bit-for-bit; none of the constants in this package may
// change without a protocol version bump.
//
// The package has no protocol behavior. Sequencing, acknowledgment and
// handshake logic live in pkg/connection.
package wire
