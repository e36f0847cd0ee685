package connection

import (
	"sync"
	"sync/atomic"
)

// GlobalSeq is the process-wide connect attempt counter. All
// connections of one endpoint share a single counter so a peer can
// order attempts across transports.
type GlobalSeq struct {
	v atomic.Uint32
}

// Next returns a fresh, strictly increasing attempt sequence.
func (g *GlobalSeq) Next() uint32 {
	return g.v.Add(1)
}

// FastForward raises the counter to at least seen. Called when a peer
// reports a higher attempt sequence than ours.
func (g *GlobalSeq) FastForward(seen uint32) {
	for {
		cur := g.v.Load()
		if seen <= cur {
			return
		}
		if g.v.CompareAndSwap(cur, seen) {
			return
		}
	}
}

// Current returns the last issued sequence.
func (g *GlobalSeq) Current() uint32 {
	return g.v.Load()
}

// TieBreakFunc decides a simultaneous-connect race. It returns true
// when the local side's outgoing attempt should win and the peer's
// inbound attempt should be told to wait.
type TieBreakFunc func(localAddr, peerAddr string) bool

// HigherAddressWins is the default tie-break: the endpoint with the
// lexically higher address keeps its outgoing attempt.
func HigherAddressWins(localAddr, peerAddr string) bool {
	return localAddr > peerAddr
}

// Registry maps peer addresses to their connections and serializes
// replacement arbitration: at most one inbound connect per registry is
// decided at a time.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Connection

	// TieBreak decides simultaneous-connect races. Defaults to
	// HigherAddressWins.
	TieBreak TieBreakFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]*Connection),
		TieBreak: HigherAddressWins,
	}
}

// Lookup returns the connection registered for peerAddr, or nil.
func (r *Registry) Lookup(peerAddr string) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[peerAddr]
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// register binds peerAddr to c and returns the displaced connection,
// if any. Callers holding r.mu use registerLocked instead.
func (r *Registry) register(peerAddr string, c *Connection) *Connection {
	r.mu.Lock()
	prev := r.conns[peerAddr]
	r.conns[peerAddr] = c
	r.mu.Unlock()
	if prev == c {
		return nil
	}
	return prev
}

func (r *Registry) registerLocked(peerAddr string, c *Connection) {
	r.conns[peerAddr] = c
}

// unregister removes the binding for peerAddr if it still points at c.
func (r *Registry) unregister(peerAddr string, c *Connection) {
	r.mu.Lock()
	if r.conns[peerAddr] == c {
		delete(r.conns, peerAddr)
	}
	r.mu.Unlock()
}
