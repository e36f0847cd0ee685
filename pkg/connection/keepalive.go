package connection

import (
	"sync"
	"time"
)

// keepaliveTracker records inbound liveness. The probe loop lives on
// the Connection; this only tracks timestamps.
type keepaliveTracker struct {
	mu sync.Mutex

	// lastAlive is the local time of the last inbound frame.
	lastAlive time.Time

	// lastAckStamp is the peer-echoed timestamp from the most recent
	// keepalive ack, in Unix nanoseconds.
	lastAckStamp uint64
}

// markAlive records inbound traffic at now.
func (k *keepaliveTracker) markAlive(now time.Time) {
	k.mu.Lock()
	if now.After(k.lastAlive) {
		k.lastAlive = now
	}
	k.mu.Unlock()
}

// recordAck records a keepalive ack echoing stamp, received at now.
func (k *keepaliveTracker) recordAck(stamp uint64, now time.Time) {
	k.mu.Lock()
	if stamp > k.lastAckStamp {
		k.lastAckStamp = stamp
	}
	if now.After(k.lastAlive) {
		k.lastAlive = now
	}
	k.mu.Unlock()
}

// sinceAlive returns the inbound silence as of now.
func (k *keepaliveTracker) sinceAlive(now time.Time) time.Duration {
	k.mu.Lock()
	defer k.mu.Unlock()
	return now.Sub(k.lastAlive)
}

// ackStamp returns the most recent peer-echoed keepalive timestamp.
func (k *keepaliveTracker) ackStamp() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastAckStamp
}
