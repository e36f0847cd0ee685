package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/msgr-protocol/msgr-go/pkg/auth"
	"github.com/msgr-protocol/msgr-go/pkg/log"
	"github.com/msgr-protocol/msgr-go/pkg/transport"
	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// closeGrace bounds how long a closing connection waits for its CLOSE
// frame to flush before tearing the transport down.
const closeGrace = 500 * time.Millisecond

// Options carries the collaborators a connection is built with.
// Zero-value fields get working defaults.
type Options struct {
	// PeerType is the expected peer type on the other end.
	PeerType wire.PeerType

	// PeerAddr is the peer's stable address, used as its registry
	// identity and logged on every event.
	PeerAddr string

	// Dialer establishes transports on the connecting side.
	Dialer transport.Dialer

	// Authorizer builds connect credentials. Defaults to
	// auth.NoneAuthorizer.
	Authorizer auth.Authorizer

	// Registry tracks connections by peer address and arbitrates
	// replacement. Optional for pure clients.
	Registry *Registry

	// GlobalSeq is the shared connect attempt counter. Connections of
	// one endpoint must share one.
	GlobalSeq *GlobalSeq

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives protocol events. Defaults to log.NoopLogger.
	Logger log.Logger
}

// ctrlFrame is a queued control frame, written before any payload
// messages.
type ctrlFrame struct {
	tag   wire.Tag
	value uint64
}

// inboundMsg pairs a delivered message with its throttle release.
type inboundMsg struct {
	msg     *wire.Message
	release func()
}

// Connection is a stateful, ordered, exactly-once message session with
// one peer, layered over a replaceable transport.
type Connection struct {
	id         string
	cfg        Config
	policy     Policy
	peerType   wire.PeerType
	codec      *wire.Codec
	clk        clock.Clock
	logger     log.Logger
	registry   *Registry
	globalSeq  *GlobalSeq
	authorizer auth.Authorizer
	dialer     transport.Dialer

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         State
	tr            transport.Transport
	epoch         int
	q             *queueTracker
	security      auth.SessionSecurity
	features      wire.Features
	connectSeq    uint32
	peerGlobalSeq uint32
	gotBadAuth    bool
	ctrlQ         []ctrlFrame
	peerAddr      string
	localAddr     string
	lastErr       error

	sendCh     chan struct{}
	inbox      chan inboundMsg
	closeReady chan struct{}
	closeOnce  sync.Once
	ka         keepaliveTracker
	throttle   *Throttle
	backoff    *Backoff

	// OnStateChange is invoked (on its own goroutine) after every
	// state transition. Set before Connect.
	OnStateChange func(old, new State)

	// OnFault is invoked when a session goes down, with a *FaultError
	// describing whether the connection is recovering.
	OnFault func(err error)

	// OnReset is invoked when the session is reset and queued
	// messages were discarded.
	OnReset func()
}

// NewConnection creates a connecting-side connection. Call Connect to
// start it.
func NewConnection(cfg Config, policy Policy, opts Options) *Connection {
	return newConnection(cfg, policy, opts)
}

func newConnection(cfg Config, policy Policy, opts Options) *Connection {
	cfg = normalizeConfig(cfg)
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Authorizer == nil {
		opts.Authorizer = auth.NoneAuthorizer{}
	}
	if opts.GlobalSeq == nil {
		opts.GlobalSeq = &GlobalSeq{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:         uuid.NewString(),
		cfg:        cfg,
		policy:     policy,
		peerType:   opts.PeerType,
		codec:      wire.NewCodec(cfg.Limits),
		clk:        opts.Clock,
		logger:     opts.Logger,
		registry:   opts.Registry,
		globalSeq:  opts.GlobalSeq,
		authorizer: opts.Authorizer,
		dialer:     opts.Dialer,
		ctx:        ctx,
		cancel:     cancel,
		q:          newQueueTracker(),
		peerAddr:   opts.PeerAddr,
		sendCh:     make(chan struct{}, 1),
		inbox:      make(chan inboundMsg, cfg.ReceiveQueueDepth),
		closeReady: make(chan struct{}),
		throttle:   NewThrottle(policy.ThrottleBytes),
		backoff:    NewBackoffWithConfig(cfg.Backoff),
	}
}

func normalizeConfig(cfg Config) Config {
	if cfg.Features == 0 {
		cfg.Features = wire.SupportedFeatures
	}
	if cfg.KeepAlive.Interval == 0 {
		cfg.KeepAlive.Interval = DefaultKeepAliveInterval
	}
	if cfg.KeepAlive.Timeout == 0 {
		cfg.KeepAlive.Timeout = DefaultKeepAliveTimeout
	}
	if cfg.Limits == (wire.Limits{}) {
		cfg.Limits = wire.DefaultLimits()
	}
	if cfg.ReceiveQueueDepth <= 0 {
		cfg.ReceiveQueueDepth = DefaultReceiveQueueDepth
	}
	return cfg
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PeerAddr returns the peer's stable address.
func (c *Connection) PeerAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr
}

// LocalAddr returns the local address of the current or most recent
// transport.
func (c *Connection) LocalAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localAddr
}

// Features returns the negotiated feature mask of the current session.
func (c *Connection) Features() wire.Features {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.features
}

// ConnectSeq returns the session establishment counter.
func (c *Connection) ConnectSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectSeq
}

// LastError returns the error that caused the most recent fault or
// close, if any.
func (c *Connection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Pending returns the number of queued plus unacked outbound messages.
func (c *Connection) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.pending()
}

// LastKeepaliveAck returns the peer-echoed timestamp of the most
// recent keepalive ack, in Unix nanoseconds. Zero before the first
// ack.
func (c *Connection) LastKeepaliveAck() uint64 {
	return c.ka.ackStamp()
}

// CloseReady returns a channel closed exactly once, when the
// connection has fully shut down.
func (c *Connection) CloseReady() <-chan struct{} {
	return c.closeReady
}

// Connect starts the connecting side: it dials, handshakes (retrying
// transient failures with backoff) and returns once the session is
// established or the failure is permanent. Subsequent faults recover
// in the background.
func (c *Connection) Connect(ctx context.Context) error {
	if c.dialer == nil {
		return errors.New("connection has no dialer")
	}
	c.mu.Lock()
	if c.state != StateNone {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.setStateLocked(StateConnecting, "connect")
	c.mu.Unlock()

	if c.registry != nil && c.peerAddr != "" {
		if prev := c.registry.register(c.peerAddr, c); prev != nil {
			prev.failPermanent(ErrReplaced)
		}
	}

	for {
		done, fatal := c.connectAttempt(ctx)
		if fatal != nil {
			c.failPermanent(fatal)
			return fatal
		}
		if done {
			return nil
		}

		delay := c.backoff.Next()
		select {
		case <-c.clk.After(delay):
		case <-ctx.Done():
			c.failPermanent(ctx.Err())
			return ctx.Err()
		case <-c.closeReady:
			return ErrConnectionClosed
		}
	}
}

// Send queues a message for ordered delivery. It never blocks on the
// network; on a faulted non-lossy connection the message waits for
// recovery. Sending on a client connection parked in standby restarts
// the dialer.
func (c *Connection) Send(m *wire.Message) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	c.q.push(m)
	revive := c.state == StateStandby && !c.policy.Server && c.dialer != nil
	if revive {
		c.setStateLocked(StateConnecting, "send revived standby")
	}
	c.mu.Unlock()
	if revive {
		go c.reconnectLoop()
	}
	c.notify()
	return nil
}

// Receive returns the next inbound message in sequence order. After
// close, buffered messages drain first, then ErrConnectionClosed.
func (c *Connection) Receive(ctx context.Context) (*wire.Message, error) {
	select {
	case im := <-c.inbox:
		im.release()
		c.notify()
		return im.msg, nil
	default:
	}
	select {
	case im := <-c.inbox:
		im.release()
		c.notify()
		return im.msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeReady:
		select {
		case im := <-c.inbox:
			im.release()
			return im.msg, nil
		default:
			return nil, ErrConnectionClosed
		}
	}
}

// Close shuts the connection down permanently. A CLOSE frame is sent
// best-effort; queued messages are dropped. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.epoch++
	t := c.tr
	c.tr = nil
	c.lastErr = ErrConnectionClosed
	c.setStateLocked(StateClosed, "local close")
	c.mu.Unlock()

	if t != nil {
		go func() {
			_ = c.codec.WriteClose(t)
			_ = t.Close()
		}()
		c.clk.AfterFunc(closeGrace, func() { _ = t.Close() })
	}
	c.finishClose()
	return nil
}

// connectAttempt dials and runs one handshake. done means stop
// dialing: established, parked in wait, or externally closed. A
// non-nil error is permanent.
func (c *Connection) connectAttempt(ctx context.Context) (done bool, fatal error) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return true, nil
	}
	c.mu.Unlock()

	if c.dialer == nil {
		return false, errors.New("connection has no dialer")
	}
	t, err := c.dialer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		c.logError(log.LayerTransport, err, "dial")
		return false, nil
	}

	stop := closeOnCancel(ctx, t)
	res, err := c.clientHandshake(t)
	stop()

	switch res {
	case hsEstablished:
		return true, nil
	case hsWait:
		_ = t.Close()
		c.mu.Lock()
		if c.state == StateConnecting {
			c.setStateLocked(StateWait, "lost connect race")
		}
		c.mu.Unlock()
		return true, nil
	case hsRetry:
		_ = t.Close()
		if err != nil {
			c.logError(log.LayerConnection, err, "handshake")
		}
		return false, nil
	default: // hsFatal
		_ = t.Close()
		return false, err
	}
}

// reconnectLoop recovers a faulted connecting-side session.
func (c *Connection) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		delay := c.backoff.Next()
		select {
		case <-c.clk.After(delay):
		case <-c.closeReady:
			return
		}

		done, fatal := c.connectAttempt(c.ctx)
		if fatal != nil {
			c.failPermanent(fatal)
			return
		}
		if done {
			return
		}
	}
}

// startSessionLocked installs a live transport and spawns the session
// goroutines. Caller holds c.mu.
func (c *Connection) startSessionLocked(t transport.Transport) {
	c.epoch++
	e := c.epoch
	c.tr = t
	c.localAddr = t.LocalAddr()
	c.lastErr = nil
	c.ka.markAlive(c.clk.Now())
	c.backoff.Reset()
	c.setStateLocked(StateOpen, "session established")

	go c.runReader(e, t)
	go c.runWriter(e, t)
	if c.cfg.KeepAlive.Interval > 0 && c.features.Contains(wire.FeatureKeepalive2) {
		go c.runKeepalive(e)
	}
	c.notify()
}

// runWriter drains control frames and the outbound queue onto t, in
// order, until the session ends. It is the only goroutine writing to
// an open session's transport.
func (c *Connection) runWriter(epoch int, t transport.Transport) {
	for {
		c.mu.Lock()
		if c.epoch != epoch || c.state != StateOpen {
			c.mu.Unlock()
			return
		}
		ctrls := c.ctrlQ
		c.ctrlQ = nil
		if seq, ok := c.q.ackNeeded(); ok {
			ctrls = append(ctrls, ctrlFrame{tag: wire.TagAck, value: seq})
			c.q.markAcked(seq)
		}
		msg := c.q.next()
		security := c.security
		c.mu.Unlock()

		if len(ctrls) == 0 && msg == nil {
			select {
			case <-c.sendCh:
				continue
			case <-c.closeReady:
				return
			}
		}

		for _, f := range ctrls {
			if err := c.writeCtrl(t, f); err != nil {
				c.fault(epoch, err)
				return
			}
		}

		if msg != nil {
			frame, err := c.codec.EncodeMessage(msg, c.signer(security))
			if err != nil {
				c.fault(epoch, err)
				return
			}
			if _, err := t.Write(frame); err != nil {
				c.fault(epoch, err)
				return
			}
			c.mu.Lock()
			if c.epoch == epoch {
				c.q.markSent(msg)
			}
			c.mu.Unlock()
			c.logMessage(log.DirectionOut, msg)
		}
	}
}

// signer adapts the session security to the codec's Signer. A nil
// security yields a nil Signer.
func (c *Connection) signer(s auth.SessionSecurity) wire.Signer {
	if s == nil {
		return nil
	}
	return s
}

func (c *Connection) writeCtrl(t transport.Transport, f ctrlFrame) error {
	var err error
	switch f.tag {
	case wire.TagAck:
		err = c.codec.WriteAck(t, f.value)
	case wire.TagKeepalive2, wire.TagKeepalive2Ack:
		err = c.codec.WriteKeepalive(t, f.tag, f.value)
	case wire.TagClose:
		err = c.codec.WriteClose(t)
	default:
		err = fmt.Errorf("%w: cannot write %s as control", wire.ErrBadTag, f.tag)
	}
	if err == nil {
		c.logCtrl(log.DirectionOut, f.tag, f.value)
	}
	return err
}

// runReader consumes frames from t and dispatches them until the
// session ends.
func (c *Connection) runReader(epoch int, t transport.Transport) {
	for {
		tag, err := c.codec.ReadTag(t)
		if err != nil {
			c.fault(epoch, err)
			return
		}

		switch tag {
		case wire.TagMsg:
			if err := c.readMessage(epoch, t); err != nil {
				c.fault(epoch, err)
				return
			}

		case wire.TagAck:
			seq, err := c.codec.ReadAck(t)
			if err != nil {
				c.fault(epoch, err)
				return
			}
			c.mu.Lock()
			if c.epoch == epoch {
				c.q.ackUpTo(seq)
			}
			c.mu.Unlock()
			c.ka.markAlive(c.clk.Now())
			c.logCtrl(log.DirectionIn, tag, seq)

		case wire.TagKeepalive2:
			stamp, err := c.codec.ReadKeepalive(t)
			if err != nil {
				c.fault(epoch, err)
				return
			}
			c.ka.markAlive(c.clk.Now())
			c.logCtrl(log.DirectionIn, tag, stamp)
			c.mu.Lock()
			if c.epoch == epoch {
				c.ctrlQ = append(c.ctrlQ, ctrlFrame{tag: wire.TagKeepalive2Ack, value: stamp})
			}
			c.mu.Unlock()
			c.notify()

		case wire.TagKeepalive2Ack:
			stamp, err := c.codec.ReadKeepalive(t)
			if err != nil {
				c.fault(epoch, err)
				return
			}
			c.ka.recordAck(stamp, c.clk.Now())
			c.logCtrl(log.DirectionIn, tag, stamp)

		case wire.TagClose:
			c.logCtrl(log.DirectionIn, tag, 0)
			c.handleRemoteClose(epoch)
			return

		default:
			c.fault(epoch, fmt.Errorf("%w: unexpected %s on open session", wire.ErrBadTag, tag))
			return
		}
	}
}

// readMessage pulls a full message frame off t, applying the receive
// throttle before the data segment, and delivers it in order.
func (c *Connection) readMessage(epoch int, t transport.Transport) error {
	h, err := c.codec.ReadHeader(t)
	if err != nil {
		return err
	}
	m := &wire.Message{Header: h}
	if m.Front, err = c.codec.ReadSegment(t, h.FrontLen); err != nil {
		return err
	}
	if m.Middle, err = c.codec.ReadSegment(t, h.MiddleLen); err != nil {
		return err
	}

	if err := c.throttle.Acquire(c.ctx, int64(h.DataLen)); err != nil {
		return err
	}
	release := func() { c.throttle.Release(int64(h.DataLen)) }

	if m.Data, err = c.codec.ReadSegment(t, h.DataLen); err != nil {
		release()
		return err
	}
	footer, err := c.codec.ReadFooter(t)
	if err != nil {
		release()
		return err
	}

	c.mu.Lock()
	security := c.security
	c.mu.Unlock()
	if err := c.codec.VerifyMessage(m, footer, c.signer(security)); err != nil {
		release()
		return err
	}
	c.ka.markAlive(c.clk.Now())

	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		release()
		return nil
	}
	deliver, err := c.q.updateRx(h.Seq)
	c.mu.Unlock()
	if err != nil {
		release()
		return err
	}
	if !deliver {
		// Duplicate of an already received message, resent after a
		// lost ack.
		release()
		return nil
	}
	c.logMessage(log.DirectionIn, m)

	select {
	case c.inbox <- inboundMsg{msg: m, release: release}:
		c.notify()
		return nil
	case <-c.closeReady:
		release()
		return nil
	case <-c.ctx.Done():
		release()
		return nil
	}
}

// runKeepalive probes the peer and faults the session on silence.
func (c *Connection) runKeepalive(epoch int) {
	interval := c.cfg.KeepAlive.Interval
	timeout := c.cfg.KeepAlive.Timeout
	ticker := c.clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-c.closeReady:
			return
		}

		c.mu.Lock()
		if c.epoch != epoch || c.state != StateOpen {
			c.mu.Unlock()
			return
		}
		now := c.clk.Now()
		if timeout > 0 && c.ka.sinceAlive(now) > timeout {
			c.mu.Unlock()
			c.fault(epoch, fmt.Errorf("keepalive timeout after %v of silence", timeout))
			return
		}
		c.ctrlQ = append(c.ctrlQ, ctrlFrame{tag: wire.TagKeepalive2, value: uint64(now.UnixNano())})
		c.mu.Unlock()
		c.notify()
	}
}

// fault brings the session for epoch down and routes recovery per
// policy. Stale epochs are ignored, so concurrent faults from the
// reader, writer and keepalive loops collapse into one.
func (c *Connection) fault(epoch int, err error) {
	c.mu.Lock()
	if c.state == StateClosed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	t := c.tr
	c.tr = nil
	if t != nil {
		_ = t.Close()
	}
	c.lastErr = err
	c.ctrlQ = nil
	c.q.requeueSent()
	c.logError(log.LayerConnection, err, "session fault")

	if c.policy.Lossy {
		c.q.reset()
		c.setStateLocked(StateClosed, "lossy fault")
		c.mu.Unlock()
		c.finishClose()
		if c.OnFault != nil {
			c.OnFault(&FaultError{Err: err})
		}
		return
	}

	if c.policy.Server {
		c.setStateLocked(StateStandby, "fault, awaiting peer reconnect")
		c.mu.Unlock()
	} else if c.q.pending() == 0 {
		// Nothing to deliver; a later Send revives the session.
		c.setStateLocked(StateStandby, "fault, idle")
		c.mu.Unlock()
	} else {
		c.setStateLocked(StateConnecting, "fault, reconnecting")
		c.mu.Unlock()
		go c.reconnectLoop()
	}
	if c.OnFault != nil {
		c.OnFault(&FaultError{Err: err, Recovering: true})
	}
}

// failPermanent closes the connection with err as the cause.
func (c *Connection) failPermanent(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.epoch++
	t := c.tr
	c.tr = nil
	c.lastErr = err
	c.setStateLocked(StateClosed, err.Error())
	c.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	c.finishClose()
	if c.OnFault != nil {
		c.OnFault(&FaultError{Err: err})
	}
}

// handleRemoteClose processes a CLOSE frame from the peer: an orderly
// shutdown, not a fault.
func (c *Connection) handleRemoteClose(epoch int) {
	c.mu.Lock()
	if c.state == StateClosed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	t := c.tr
	c.tr = nil
	c.lastErr = ErrConnectionClosed
	c.setStateLocked(StateClosed, "closed by peer")
	c.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	c.finishClose()
}

// resetSessionLocked discards all session state after a peer-side
// reset. Caller holds c.mu.
func (c *Connection) resetSessionLocked() {
	c.q.reset()
	c.connectSeq = 0
	c.ctrlQ = nil
	c.lastErr = ErrSessionReset
	if c.OnReset != nil {
		go c.OnReset()
	}
}

// finishClose completes shutdown outside c.mu: cancels the connection
// context, fires close_ready and drops the registry binding.
func (c *Connection) finishClose() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.closeReady)
	})
	if c.registry != nil && c.peerAddr != "" {
		c.registry.unregister(c.peerAddr, c)
	}
}

// setStateLocked transitions the state and fires callbacks. Caller
// holds c.mu.
func (c *Connection) setStateLocked(next State, reason string) {
	old := c.state
	if old == next {
		return
	}
	c.state = next
	c.logger.Log(log.Event{
		Timestamp:    c.clk.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerConnection,
		Category:     log.CategoryState,
		LocalRole:    c.role(),
		RemoteAddr:   c.peerAddr,
		StateChange: &log.StateChangeEvent{
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	if c.OnStateChange != nil {
		go c.OnStateChange(old, next)
	}
}

func (c *Connection) notify() {
	select {
	case c.sendCh <- struct{}{}:
	default:
	}
}

func (c *Connection) role() log.Role {
	if c.policy.Server {
		return log.RoleServer
	}
	return log.RoleClient
}

func (c *Connection) logCtrl(dir log.Direction, tag wire.Tag, value uint64) {
	c.logger.Log(log.Event{
		Timestamp:    c.clk.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerConnection,
		Category:     log.CategoryControl,
		LocalRole:    c.role(),
		RemoteAddr:   c.peerAddr,
		ControlMsg:   &log.ControlMsgEvent{Tag: uint8(tag), Value: value},
	})
}

func (c *Connection) logMessage(dir log.Direction, m *wire.Message) {
	c.logger.Log(log.Event{
		Timestamp:    c.clk.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		LocalRole:    c.role(),
		RemoteAddr:   c.peerAddr,
		Message: &log.MessageEvent{
			Seq:       m.Header.Seq,
			Tid:       m.Header.Tid,
			Type:      m.Header.Type,
			Priority:  m.Header.Priority,
			FrontLen:  m.Header.FrontLen,
			MiddleLen: m.Header.MiddleLen,
			DataLen:   m.Header.DataLen,
		},
	})
}

func (c *Connection) logError(layer log.Layer, err error, context string) {
	c.logger.Log(log.Event{
		Timestamp:    c.clk.Now(),
		ConnectionID: c.id,
		Layer:        layer,
		Category:     log.CategoryError,
		LocalRole:    c.role(),
		RemoteAddr:   c.peerAddr,
		Error:        &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: context},
	})
}

// closeOnCancel closes t when ctx is cancelled, unblocking any read or
// write in flight. The returned stop disarms it.
func closeOnCancel(ctx context.Context, t transport.Transport) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = t.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
