package transport

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe("node-a", "node-b")
	defer a.Close()
	defer b.Close()

	if a.LocalAddr() != "node-a" || a.RemoteAddr() != "node-b" {
		t.Errorf("a addrs = %s->%s", a.LocalAddr(), a.RemoteAddr())
	}
	if b.LocalAddr() != "node-b" || b.RemoteAddr() != "node-a" {
		t.Errorf("b addrs = %s->%s", b.LocalAddr(), b.RemoteAddr())
	}

	msg := []byte("hello")
	go func() {
		a.Write(msg)
	}()

	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(b, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "hello" {
		t.Errorf("read %q, want %q", buf, msg)
	}
}

func TestPipeCloseUnblocksPeer(t *testing.T) {
	a, b := Pipe("a", "b")

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := b.Read(buf)
		done <- err
	}()

	a.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected read error after peer close")
		}
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after peer close")
	}
}

func TestPipeDoubleClose(t *testing.T) {
	a, b := Pipe("a", "b")
	b.Close()
	if err := a.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestTCPRoundTrip(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()

	accepted := make(chan Transport, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, ln.Addr())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	var server Transport
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("accept timed out")
	}
	defer server.Close()

	if client.RemoteAddr() != ln.Addr() {
		t.Errorf("client remote = %s, want %s", client.RemoteAddr(), ln.Addr())
	}

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(server, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("read %q, want %q", buf, "ping")
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr()
	ln.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Dial(ctx, addr); err == nil {
		t.Error("expected dial to a closed listener to fail")
	}
}

func TestTCPDialer(t *testing.T) {
	ln, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	dial := TCPDialer(ln.Addr())
	conn, err := dial(context.Background())
	if err != nil {
		t.Fatalf("dialer failed: %v", err)
	}
	conn.Close()
}
