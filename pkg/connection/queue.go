package connection

import (
	"fmt"

	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// queueTracker holds a session's sequence bookkeeping: the outbound
// queue of unsent messages, the sent-but-unacked window, and the
// inbound cumulative sequence. It is not self-locking; the owning
// Connection serializes access.
type queueTracker struct {
	// outSeq is the sequence of the last message handed to the writer.
	outSeq uint64

	// inSeq is the sequence of the last in-order message received.
	inSeq uint64

	// ackedSeq is the last inSeq value the peer has been told about.
	ackedSeq uint64

	// outQ holds queued messages not yet written on the current
	// transport. Requeued messages keep their assigned sequence.
	outQ []*wire.Message

	// sent holds messages written but not yet acked, in sequence
	// order.
	sent []*wire.Message
}

func newQueueTracker() *queueTracker {
	return &queueTracker{}
}

// push appends a message to the outbound queue.
func (q *queueTracker) push(m *wire.Message) {
	q.outQ = append(q.outQ, m)
}

// pending returns the number of queued plus unacked messages.
func (q *queueTracker) pending() int {
	return len(q.outQ) + len(q.sent)
}

// next returns the front of the outbound queue without removing it,
// assigning its sequence if it has none yet.
func (q *queueTracker) next() *wire.Message {
	if len(q.outQ) == 0 {
		return nil
	}
	m := q.outQ[0]
	if m.Header.Seq == 0 {
		q.outSeq++
		m.Header.Seq = q.outSeq
	}
	return m
}

// markSent moves m from the front of the outbound queue to the
// unacked window. Call after the message was written in full. A
// session reset can race the write m was peeked for; if m no longer
// heads the queue the call is a no-op.
func (q *queueTracker) markSent(m *wire.Message) {
	if len(q.outQ) == 0 || q.outQ[0] != m {
		return
	}
	q.outQ = q.outQ[1:]
	q.sent = append(q.sent, m)
}

// ackUpTo drops sent messages with sequence <= seq. Acks are
// cumulative; stale acks are ignored.
func (q *queueTracker) ackUpTo(seq uint64) {
	for len(q.sent) > 0 && q.sent[0].Header.Seq <= seq {
		q.sent = q.sent[1:]
	}
}

// requeueSent prepends the unacked window back onto the outbound
// queue, preserving order. Call on fault before the replacement
// transport comes up.
func (q *queueTracker) requeueSent() {
	if len(q.sent) == 0 {
		return
	}
	q.outQ = append(append([]*wire.Message{}, q.sent...), q.outQ...)
	q.sent = nil
}

// discardSentUpTo drops queued and sent messages with sequence <= seq.
// Used after a sequence exchange on reconnect, when the peer reports
// what it already received.
func (q *queueTracker) discardSentUpTo(seq uint64) {
	q.ackUpTo(seq)
	for len(q.outQ) > 0 && q.outQ[0].Header.Seq != 0 && q.outQ[0].Header.Seq <= seq {
		q.outQ = q.outQ[1:]
	}
}

// updateRx validates an inbound message sequence. In-order messages
// advance inSeq and deliver; duplicates of already-received messages
// are dropped silently (the peer resent after a lost ack); a gap is a
// protocol violation.
func (q *queueTracker) updateRx(seq uint64) (deliver bool, err error) {
	switch {
	case seq == q.inSeq+1:
		q.inSeq = seq
		return true, nil
	case seq <= q.inSeq:
		return false, nil
	default:
		return false, fmt.Errorf("%w: message seq %d after %d", wire.ErrProtocol, seq, q.inSeq)
	}
}

// ackNeeded reports whether the peer has unacked deliveries, and the
// sequence an ack should carry.
func (q *queueTracker) ackNeeded() (uint64, bool) {
	if q.inSeq > q.ackedSeq {
		return q.inSeq, true
	}
	return 0, false
}

// markAcked records that an ack for seq was written.
func (q *queueTracker) markAcked(seq uint64) {
	if seq > q.ackedSeq {
		q.ackedSeq = seq
	}
}

// reset discards all queued state and zeroes the sequence space.
// Used when the session is reset.
func (q *queueTracker) reset() {
	q.outQ = nil
	q.sent = nil
	q.outSeq = 0
	q.inSeq = 0
	q.ackedSeq = 0
}
