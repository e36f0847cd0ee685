// Package connection implements the per-peer connection engine: a
// stateful, ordered, exactly-once message session layered over a
// replaceable byte-stream transport.
//
// A Connection owns the full lifecycle: banner and connect-frame
// handshake (with authorization), sequence and ack bookkeeping,
// keepalive probing, receive-side throttling, and fault recovery.
// Non-lossy connections survive transport loss: sent-but-unacked
// messages are requeued and redelivered on the replacement transport,
// preserving order and exactly-once delivery. Lossy connections drop
// state on the first fault.
//
// The connecting side recovers faults by redialing with capped,
// jittered exponential backoff. The accepting side parks faulted
// connections in standby until the peer's next connect revives them
// through the Registry's replacement arbitration.
//
// Send may be called from any goroutine; messages are queued and
// written in order by a single writer. Receive delivers inbound
// messages in sequence order.
package connection
