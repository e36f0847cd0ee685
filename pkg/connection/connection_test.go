package connection

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/msgr-protocol/msgr-go/pkg/auth"
	"github.com/msgr-protocol/msgr-go/pkg/transport"
	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

const (
	testClientAddr = "10.0.0.2:6800"
	testServerAddr = "10.0.0.1:6800"
)

// testEnv wires client connections to an acceptor over in-memory
// pipes, keeping a handle on the server-side transport so tests can
// sever it.
type testEnv struct {
	t     *testing.T
	acc   *Acceptor
	srvCh chan *Connection

	mu      sync.Mutex
	lastSrv transport.Transport
}

// fastCfg returns defaults tightened for tests: millisecond reconnect
// backoff and no keepalive probing.
func fastCfg() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{
		Initial:    time.Millisecond,
		Max:        20 * time.Millisecond,
		Multiplier: 2,
		Jitter:     -1,
	}
	cfg.KeepAlive.Interval = -1
	return cfg
}

func newTestEnv(t *testing.T, cfg Config, authSrv auth.AuthServer, pol func(wire.PeerType) Policy) *testEnv {
	e := &testEnv{t: t, srvCh: make(chan *Connection, 8)}
	e.acc = NewAcceptor(cfg, authSrv, AcceptorOptions{Policy: pol})
	return e
}

func (e *testEnv) dialer() transport.Dialer {
	return func(ctx context.Context) (transport.Transport, error) {
		ct, st := transport.Pipe(testClientAddr, testServerAddr)
		e.mu.Lock()
		e.lastSrv = st
		e.mu.Unlock()
		go func() {
			conn, err := e.acc.Accept(context.Background(), st)
			if err == nil && conn != nil {
				select {
				case e.srvCh <- conn:
				default:
				}
			}
		}()
		return ct, nil
	}
}

// killTransport severs the most recent session without a CLOSE frame,
// simulating a network failure.
func (e *testEnv) killTransport() {
	e.mu.Lock()
	if e.lastSrv != nil {
		_ = e.lastSrv.Close()
	}
	e.mu.Unlock()
}

func (e *testEnv) serverConn() *Connection {
	e.t.Helper()
	select {
	case c := <-e.srvCh:
		return c
	case <-time.After(2 * time.Second):
		e.t.Fatal("no server connection established")
		return nil
	}
}

func receiveOne(t *testing.T, c *Connection) *wire.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	m, err := c.Receive(ctx)
	require.NoError(t, err)
	return m
}

func TestClientServerExchange(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()

	require.NoError(t, cli.Connect(context.Background()))
	require.Equal(t, StateOpen, cli.State())

	srv := e.serverConn()
	defer srv.Close()

	payloads := []string{"alpha", "beta", "gamma"}
	for _, p := range payloads {
		require.NoError(t, cli.Send(wire.NewMessage(1, []byte(p), nil, nil)))
	}
	for i, p := range payloads {
		m := receiveOne(t, srv)
		require.Equal(t, uint64(i+1), m.Header.Seq)
		require.Equal(t, p, string(m.Front))
	}

	require.NoError(t, srv.Send(wire.NewMessage(2, []byte("reply"), nil, []byte("data"))))
	m := receiveOne(t, cli)
	require.Equal(t, "reply", string(m.Front))
	require.Equal(t, "data", string(m.Data))

	// acks drain the unacked windows on both sides
	require.Eventually(t, func() bool {
		return cli.Pending() == 0 && srv.Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, uint32(1), cli.ConnectSeq())
	require.Equal(t, uint32(1), srv.ConnectSeq())
	require.True(t, cli.Features().Contains(wire.RequiredFeatures))
}

func TestRemoteClose(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	require.NoError(t, cli.Connect(context.Background()))
	srv := e.serverConn()

	require.NoError(t, cli.Close())

	select {
	case <-srv.CloseReady():
	case <-time.After(2 * time.Second):
		t.Fatal("server did not observe the close")
	}
	require.Equal(t, StateClosed, srv.State())

	_, err := srv.Receive(context.Background())
	require.ErrorIs(t, err, ErrConnectionClosed)
	require.ErrorIs(t, cli.Send(wire.NewMessage(1, nil, nil, nil)), ErrConnectionClosed)
}

func TestFaultResumesSession(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()

	require.NoError(t, cli.Connect(context.Background()))
	srv := e.serverConn()
	defer srv.Close()

	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("one"), nil, nil)))
	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("two"), nil, nil)))
	require.Equal(t, uint64(1), receiveOne(t, srv).Header.Seq)
	require.Equal(t, uint64(2), receiveOne(t, srv).Header.Seq)

	e.killTransport()

	for _, p := range []string{"three", "four", "five"} {
		require.NoError(t, cli.Send(wire.NewMessage(1, []byte(p), nil, nil)))
	}

	// the session resumes on a fresh transport and delivery picks up
	// exactly where it left off
	for i, p := range []string{"three", "four", "five"} {
		m := receiveOne(t, srv)
		require.Equal(t, uint64(i+3), m.Header.Seq)
		require.Equal(t, p, string(m.Front))
	}

	require.Eventually(t, func() bool { return cli.ConnectSeq() == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, StateOpen, cli.State())
}

func TestLossyFaultCloses(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, func(wire.PeerType) Policy { return LossyServer() })
	cli := NewConnection(fastCfg(), LossyClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	require.NoError(t, cli.Connect(context.Background()))
	srv := e.serverConn()

	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("hello"), nil, nil)))
	require.Equal(t, "hello", string(receiveOne(t, srv).Front))

	e.killTransport()

	select {
	case <-cli.CloseReady():
	case <-time.After(2 * time.Second):
		t.Fatal("lossy client did not close on fault")
	}
	require.Equal(t, StateClosed, cli.State())
	require.ErrorIs(t, cli.Send(wire.NewMessage(1, nil, nil, nil)), ErrConnectionClosed)

	select {
	case <-srv.CloseReady():
	case <-time.After(2 * time.Second):
		t.Fatal("lossy server did not close on fault")
	}
}

func TestSessionResetByRestartedPeer(t *testing.T) {
	e1 := newTestEnv(t, fastCfg(), nil, nil)
	e2 := newTestEnv(t, fastCfg(), nil, nil)
	d1, d2 := e1.dialer(), e2.dialer()

	var useSecond atomic.Bool
	dialer := func(ctx context.Context) (transport.Transport, error) {
		if useSecond.Load() {
			return d2(ctx)
		}
		return d1(ctx)
	}

	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   dialer,
	})
	defer cli.Close()
	resetCh := make(chan struct{}, 1)
	cli.OnReset = func() {
		select {
		case resetCh <- struct{}{}:
		default:
		}
	}

	require.NoError(t, cli.Connect(context.Background()))
	srv1 := e1.serverConn()
	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("before"), nil, nil)))
	require.Equal(t, "before", string(receiveOne(t, srv1).Front))

	// the peer "restarts": new acceptor with no session memory
	useSecond.Store(true)
	e1.killTransport()

	// this send revives the client if the fault parked it in standby;
	// the attempt runs into the peer's lost session and is discarded
	// by the reset
	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("after"), nil, nil)))

	select {
	case <-resetCh:
	case <-time.After(2 * time.Second):
		t.Fatal("reset callback never fired")
	}

	srv2 := e2.serverConn()
	defer srv2.Close()
	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("after"), nil, nil)))

	m := receiveOne(t, srv2)
	require.Equal(t, "after", string(m.Front))
	// the reset started a fresh sequence space and session
	require.Equal(t, uint64(1), m.Header.Seq)
	require.Equal(t, uint32(1), cli.ConnectSeq())
}

func TestIdleClientParksInStandby(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))
	srv := e.serverConn()
	defer srv.Close()

	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("ping"), nil, nil)))
	require.Equal(t, "ping", string(receiveOne(t, srv).Front))
	// wait for the ack so nothing is pending when the transport dies
	require.Eventually(t, func() bool { return cli.Pending() == 0 }, 2*time.Second, 10*time.Millisecond)

	e.killTransport()

	// with nothing to deliver the client must not burn reconnect
	// attempts; it parks until the next send
	require.Eventually(t, func() bool { return cli.State() == StateStandby }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, cli.Send(wire.NewMessage(1, []byte("revived"), nil, nil)))
	m := receiveOne(t, srv)
	require.Equal(t, "revived", string(m.Front))
	require.Equal(t, uint64(2), m.Header.Seq)
	require.Eventually(t, func() bool { return cli.State() == StateOpen }, 2*time.Second, 10*time.Millisecond)
}

// closeRecordingTransport notes whether Close was called, while the
// embedded transport keeps its blocking write semantics.
type closeRecordingTransport struct {
	transport.Transport
	closed atomic.Bool
}

func (c *closeRecordingTransport) Close() error {
	c.closed.Store(true)
	return c.Transport.Close()
}

func TestCloseGraceRunsOnInjectedClock(t *testing.T) {
	mock := clock.NewMock()
	c := newConnection(fastCfg(), StatefulClient(), Options{Clock: mock})

	// the peer end is never read, so the best-effort CLOSE frame
	// blocks and only the grace timer can release the transport
	a, b := transport.Pipe(testClientAddr, testServerAddr)
	defer b.Close()
	tr := &closeRecordingTransport{Transport: a}
	c.mu.Lock()
	c.state = StateOpen
	c.epoch = 1
	c.tr = tr
	c.mu.Unlock()

	require.NoError(t, c.Close())
	select {
	case <-c.CloseReady():
	case <-time.After(2 * time.Second):
		t.Fatal("close did not complete")
	}
	time.Sleep(20 * time.Millisecond)
	require.False(t, tr.closed.Load(), "transport torn down before the grace period")

	mock.Add(2 * closeGrace)
	require.Eventually(t, func() bool { return tr.closed.Load() }, 2*time.Second, 10*time.Millisecond)
}

func TestReceiveContextTimeout(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := cli.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectTwice(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))
	require.ErrorIs(t, cli.Connect(context.Background()), ErrAlreadyStarted)
}

func TestKeepaliveProbeAndAck(t *testing.T) {
	mock := clock.NewMock()
	e := newTestEnv(t, fastCfg(), nil, nil)

	cfg := fastCfg()
	cfg.KeepAlive.Interval = 10 * time.Second
	cfg.KeepAlive.Timeout = 10 * time.Hour
	cli := NewConnection(cfg, StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
		Clock:    mock,
	})
	defer cli.Close()
	require.NoError(t, cli.Connect(context.Background()))
	srv := e.serverConn()
	defer srv.Close()

	for i := 0; i < 50 && cli.LastKeepaliveAck() == 0; i++ {
		mock.Add(10 * time.Second)
		time.Sleep(5 * time.Millisecond)
	}
	require.NotZero(t, cli.LastKeepaliveAck(), "no keepalive ack came back")
}

func TestKeepaliveTimeoutFaults(t *testing.T) {
	mock := clock.NewMock()
	cfg := fastCfg()
	cfg.KeepAlive.Interval = time.Second
	cfg.KeepAlive.Timeout = 3 * time.Second

	// a server-policy connection parks in standby on fault
	c := newConnection(cfg, StatefulServer(), Options{Clock: mock})
	c.mu.Lock()
	c.state = StateOpen
	c.epoch = 1
	c.features = wire.SupportedFeatures
	c.mu.Unlock()
	c.ka.markAlive(mock.Now())

	go c.runKeepalive(1)

	for i := 0; i < 20 && c.State() != StateStandby; i++ {
		mock.Add(time.Second)
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, StateStandby, c.State())
	require.Error(t, c.LastError())
}

func TestOnStateChangeCallback(t *testing.T) {
	e := newTestEnv(t, fastCfg(), nil, nil)
	cli := NewConnection(fastCfg(), StatefulClient(), Options{
		PeerType: wire.PeerTypeClient,
		PeerAddr: testServerAddr,
		Dialer:   e.dialer(),
	})
	defer cli.Close()

	var mu sync.Mutex
	var seen []State
	cli.OnStateChange = func(_, next State) {
		mu.Lock()
		seen = append(seen, next)
		mu.Unlock()
	}

	require.NoError(t, cli.Connect(context.Background()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		var connecting, open bool
		for _, s := range seen {
			connecting = connecting || s == StateConnecting
			open = open || s == StateOpen
		}
		return connecting && open
	}, 2*time.Second, 10*time.Millisecond)
}
