package transport

import (
	"net"
	"sync"
)

// pipeConn is one end of an in-memory transport pair.
type pipeConn struct {
	conn       net.Conn
	localAddr  string
	remoteAddr string

	closeOnce sync.Once
	closeErr  error
}

// Pipe creates a connected in-memory transport pair with the given
// endpoint addresses. Writes on one end block until read from the
// other, like net.Pipe. Intended for tests.
func Pipe(addrA, addrB string) (Transport, Transport) {
	ca, cb := net.Pipe()
	a := &pipeConn{conn: ca, localAddr: addrA, remoteAddr: addrB}
	b := &pipeConn{conn: cb, localAddr: addrB, remoteAddr: addrA}
	return a, b
}

func (p *pipeConn) Read(b []byte) (int, error)  { return p.conn.Read(b) }
func (p *pipeConn) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *pipeConn) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.conn.Close()
	})
	return p.closeErr
}

func (p *pipeConn) LocalAddr() string  { return p.localAddr }
func (p *pipeConn) RemoteAddr() string { return p.remoteAddr }
