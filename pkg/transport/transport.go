package transport

import (
	"context"
	"errors"
	"io"
)

// ErrClosed is returned by Read and Write after the transport has been
// closed locally.
var ErrClosed = errors.New("transport closed")

// Transport is an ordered, reliable byte stream between two endpoints.
// Read and Write may be called concurrently with each other, but each
// must have at most one caller at a time.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer

	// LocalAddr returns the local endpoint address.
	LocalAddr() string

	// RemoteAddr returns the remote endpoint address.
	RemoteAddr() string
}

// Dialer establishes a fresh Transport to a peer. The connection
// engine calls it once per reconnect attempt.
type Dialer func(ctx context.Context) (Transport, error)

// Compile-time interface satisfaction checks.
var (
	_ Transport = (*TCPConn)(nil)
	_ Transport = (*pipeConn)(nil)
)
