// Package transport provides the byte-stream abstraction the
// connection engine runs on.
//
// A Transport is an ordered, reliable, bidirectional byte stream with
// addressable endpoints. The package ships two implementations: a TCP
// adapter for production use and an in-memory pipe pair for tests.
// The connection engine owns framing, sequencing and recovery; a
// Transport only moves bytes and reports failure.
//
// Transports are single-use. After Close, or after any Read or Write
// error, the Transport is dead and the owning connection decides
// whether to dial a replacement.
package transport
