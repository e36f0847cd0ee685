package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// DefaultDialTimeout bounds a single TCP connect attempt when the
// caller's context carries no deadline.
const DefaultDialTimeout = 10 * time.Second

// TCPConn adapts a net.Conn to the Transport interface.
type TCPConn struct {
	conn net.Conn
}

// Dial establishes a TCP transport to addr. OS-level keepalive is
// disabled: liveness is probed at the protocol layer.
func Dial(ctx context.Context, addr string) (*TCPConn, error) {
	d := net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: -1,
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &TCPConn{conn: conn}, nil
}

// NewTCPConn wraps an already established net.Conn, typically one
// returned by a Listener.
func NewTCPConn(conn net.Conn) *TCPConn {
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &TCPConn{conn: conn}
}

// TCPDialer returns a Dialer that connects to addr.
func TCPDialer(addr string) Dialer {
	return func(ctx context.Context) (Transport, error) {
		return Dial(ctx, addr)
	}
}

func (c *TCPConn) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *TCPConn) Write(p []byte) (int, error) { return c.conn.Write(p) }

// Close closes the underlying socket. Blocked Reads and Writes return
// with an error.
func (c *TCPConn) Close() error { return c.conn.Close() }

// LocalAddr returns the local socket address.
func (c *TCPConn) LocalAddr() string { return c.conn.LocalAddr().String() }

// RemoteAddr returns the remote socket address.
func (c *TCPConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

// Listener accepts incoming TCP transports.
type Listener struct {
	ln net.Listener
}

// Listen opens a TCP listener on addr (e.g. ":6800").
func Listen(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return &Listener{ln: ln}, nil
}

// Accept waits for the next inbound transport. It returns an error
// after Close.
func (l *Listener) Accept() (Transport, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewTCPConn(conn), nil
}

// Addr returns the listener's bound address.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

// Close stops the listener. Blocked Accept calls return with an error.
func (l *Listener) Close() error { return l.ln.Close() }
