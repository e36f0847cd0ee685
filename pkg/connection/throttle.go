package connection

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Throttle gates inbound payload bytes. The reader acquires before
// pulling a message's data segment off the wire and the corresponding
// release happens when the application consumes the message, so a slow
// consumer exerts backpressure on the peer instead of growing memory.
//
// Waiters are served in FIFO order; a large message cannot be starved
// by a stream of small ones.
type Throttle struct {
	sem   *semaphore.Weighted
	limit int64
}

// NewThrottle creates a throttle admitting up to limit bytes.
// A zero or negative limit disables throttling.
func NewThrottle(limit int64) *Throttle {
	if limit <= 0 {
		return &Throttle{}
	}
	return &Throttle{sem: semaphore.NewWeighted(limit), limit: limit}
}

// Acquire blocks until n bytes of budget are available or ctx is done.
// Requests larger than the total limit are clamped to the limit so a
// single oversized message can still pass, alone.
func (t *Throttle) Acquire(ctx context.Context, n int64) error {
	if t.sem == nil || n <= 0 {
		return nil
	}
	if n > t.limit {
		n = t.limit
	}
	return t.sem.Acquire(ctx, n)
}

// Release returns n bytes of budget.
func (t *Throttle) Release(n int64) {
	if t.sem == nil || n <= 0 {
		return
	}
	if n > t.limit {
		n = t.limit
	}
	t.sem.Release(n)
}

// Limit returns the configured byte limit, zero when disabled.
func (t *Throttle) Limit() int64 { return t.limit }
