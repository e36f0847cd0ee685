package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/msgr-protocol/msgr-go/pkg/auth"
	"github.com/msgr-protocol/msgr-go/pkg/log"
	"github.com/msgr-protocol/msgr-go/pkg/transport"
	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// AcceptorOptions carries the collaborators an acceptor is built with.
type AcceptorOptions struct {
	// Registry tracks connections by peer address. Defaults to a
	// fresh one; share it with outgoing connections so simultaneous
	// connects are arbitrated.
	Registry *Registry

	// GlobalSeq is the shared connect attempt counter.
	GlobalSeq *GlobalSeq

	// Clock is the time source. Defaults to the wall clock.
	Clock clock.Clock

	// Logger receives protocol events. Defaults to log.NoopLogger.
	Logger log.Logger

	// Policy selects the connection policy for an inbound peer type.
	// Defaults to StatefulServer for every type.
	Policy func(peer wire.PeerType) Policy
}

// Acceptor runs the accepting side of the handshake: it verifies
// credentials, arbitrates session replacement through the registry and
// turns inbound transports into connections.
type Acceptor struct {
	cfg       Config
	authSrv   auth.AuthServer
	codec     *wire.Codec
	registry  *Registry
	globalSeq *GlobalSeq
	clk       clock.Clock
	logger    log.Logger
	policyFor func(wire.PeerType) Policy
}

// NewAcceptor creates an acceptor. authSrv verifies inbound
// credentials; auth.NoneServer accepts unauthorized peers.
func NewAcceptor(cfg Config, authSrv auth.AuthServer, opts AcceptorOptions) *Acceptor {
	cfg = normalizeConfig(cfg)
	if authSrv == nil {
		authSrv = auth.NoneServer{}
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.GlobalSeq == nil {
		opts.GlobalSeq = &GlobalSeq{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = log.NoopLogger{}
	}
	if opts.Policy == nil {
		opts.Policy = func(wire.PeerType) Policy { return StatefulServer() }
	}
	return &Acceptor{
		cfg:       cfg,
		authSrv:   authSrv,
		codec:     wire.NewCodec(cfg.Limits),
		registry:  opts.Registry,
		globalSeq: opts.GlobalSeq,
		clk:       opts.Clock,
		logger:    opts.Logger,
		policyFor: opts.Policy,
	}
}

// Registry returns the acceptor's connection registry.
func (a *Acceptor) Registry() *Registry { return a.registry }

// Accept runs the handshake on an inbound transport. On success the
// returned connection is open; a handshake that revives or replaces an
// existing registered connection returns that connection. A nil
// connection with nil error means the inbound attempt was turned away
// (it lost a simultaneous-connect race).
func (a *Acceptor) Accept(ctx context.Context, t transport.Transport) (*Connection, error) {
	conn, _, err := a.accept(ctx, t)
	return conn, err
}

// Serve accepts transports from ln until ctx is cancelled, running the
// handshake on each. handle is invoked once per newly created
// connection; revived sessions keep their existing connection and are
// not re-announced.
func (a *Acceptor) Serve(ctx context.Context, ln *transport.Listener, handle func(*Connection)) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		t, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		go func() {
			conn, isNew, err := a.accept(ctx, t)
			if err != nil {
				a.logger.Log(log.Event{
					Timestamp:  a.clk.Now(),
					Layer:      log.LayerConnection,
					Category:   log.CategoryError,
					LocalRole:  log.RoleServer,
					RemoteAddr: t.RemoteAddr(),
					Error:      &log.ErrorEventData{Layer: log.LayerConnection, Message: err.Error(), Context: "accept"},
				})
				_ = t.Close()
				return
			}
			if isNew && conn != nil && handle != nil {
				handle(conn)
			}
		}()
	}
}

func (a *Acceptor) accept(ctx context.Context, t transport.Transport) (*Connection, bool, error) {
	stop := closeOnCancel(ctx, t)
	defer stop()

	// The accepting side reads the banner before sending its own.
	if err := a.codec.ReadBanner(t); err != nil {
		return nil, false, err
	}
	if err := a.codec.WriteBanner(t); err != nil {
		return nil, false, err
	}

	// One transport may carry several connect attempts: after a
	// redirecting reply the client retries on the same transport.
	for {
		tag, err := a.codec.ReadTag(t)
		if err != nil {
			return nil, false, err
		}
		if tag != wire.TagConnect {
			return nil, false, fmt.Errorf("%w: %s, want CONNECT", wire.ErrBadTag, tag)
		}
		req, err := a.codec.ReadConnectRequest(t)
		if err != nil {
			return nil, false, err
		}
		a.logHandshake(log.DirectionIn, wire.TagConnect, req)

		expectVer := wire.ProtocolVersion(req.HostType, a.cfg.HostType)
		if req.ProtocolVersion != expectVer {
			err := a.reply(t, req, &wire.ConnectReply{
				Tag:             wire.TagBadProtoVersion,
				ProtocolVersion: expectVer,
			})
			if err != nil {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: peer %s sent %d, want %d",
				ErrProtocolMismatch, req.SrcAddr, req.ProtocolVersion, expectVer)
		}

		negotiated := req.Features & a.cfg.Features
		if !negotiated.Contains(a.cfg.RequiredFeatures) {
			err := a.reply(t, req, &wire.ConnectReply{
				Tag:      wire.TagFeatures,
				Features: a.cfg.Features,
			})
			if err != nil {
				return nil, false, err
			}
			return nil, false, fmt.Errorf("%w: peer %s offers %#x, required %#x",
				ErrFeatureMismatch, req.SrcAddr, uint64(req.Features), uint64(a.cfg.RequiredFeatures))
		}

		grant, err := a.authSrv.Verify(req.AuthProto, req.Authorizer)
		if err != nil {
			if !errors.Is(err, auth.ErrBadAuthorizer) && !errors.Is(err, auth.ErrUnknownProtocol) {
				return nil, false, err
			}
			// The client may retry on the same transport with a
			// refreshed credential.
			if err := a.reply(t, req, &wire.ConnectReply{Tag: wire.TagBadAuthorizer}); err != nil {
				return nil, false, err
			}
			continue
		}

		conn, isNew, retryTag, retryReply := a.arbitrate(req)
		if retryTag != 0 {
			if err := a.reply(t, req, retryReply); err != nil {
				return nil, false, err
			}
			if retryTag == wire.TagWait {
				_ = t.Close()
				return nil, false, nil
			}
			continue
		}
		established, err := a.establish(t, conn, req, negotiated, grant)
		if err != nil {
			return nil, false, err
		}
		if !established {
			// Superseded by a newer attempt while replying.
			_ = t.Close()
			return nil, false, nil
		}
		return conn, isNew, nil
	}
}

// arbitrate decides, under the registry lock, what an inbound connect
// means for the peer's registered connection: accept it (returning the
// connection to establish on), or send a redirecting reply (returning
// its tag and body).
func (a *Acceptor) arbitrate(req *wire.ConnectRequest) (conn *Connection, isNew bool, retryTag wire.Tag, retryReply *wire.ConnectReply) {
	r := a.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.conns[req.SrcAddr]
	if existing != nil && existing.State() == StateClosed {
		existing = nil
	}

	if existing == nil {
		if req.ConnectSeq > 0 {
			// The peer continues a session we have no memory of.
			return nil, false, wire.TagResetSession, &wire.ConnectReply{Tag: wire.TagResetSession}
		}
		conn = a.newServerConn(req)
		r.registerLocked(req.SrcAddr, conn)
		return conn, true, 0, nil
	}

	existing.mu.Lock()
	state := existing.state
	peerGSeq := existing.peerGlobalSeq
	cseq := existing.connectSeq
	existing.mu.Unlock()

	if state == StateConnecting {
		// Simultaneous open: both endpoints dialed each other. The
		// tie-break decides which attempt survives.
		if r.TieBreak(req.DstAddr, req.SrcAddr) {
			return nil, false, wire.TagWait, &wire.ConnectReply{Tag: wire.TagWait}
		}
		return existing, false, 0, nil
	}

	if req.GlobalSeq < peerGSeq {
		// Stale attempt from before the peer's newest one.
		return nil, false, wire.TagRetryGlobal, &wire.ConnectReply{
			Tag:       wire.TagRetryGlobal,
			GlobalSeq: peerGSeq,
		}
	}
	if req.ConnectSeq < cseq {
		if req.ConnectSeq == 0 {
			// The peer restarted and lost the session; drop our half
			// and accept a fresh one. Bumping the epoch fences the old
			// session's goroutines off the queue before it is emptied.
			existing.mu.Lock()
			existing.epoch++
			if old := existing.tr; old != nil {
				existing.tr = nil
				_ = old.Close()
			}
			existing.resetSessionLocked()
			existing.mu.Unlock()
			return existing, false, 0, nil
		}
		return nil, false, wire.TagRetrySession, &wire.ConnectReply{
			Tag:        wire.TagRetrySession,
			ConnectSeq: cseq,
		}
	}
	return existing, false, 0, nil
}

// establish replaces conn's session with one on t and replies READY.
// It returns false without error when a competing attempt superseded
// this one mid-reply.
func (a *Acceptor) establish(t transport.Transport, conn *Connection, req *wire.ConnectRequest, negotiated wire.Features, grant *auth.Grant) (bool, error) {
	conn.mu.Lock()
	if conn.state == StateClosed {
		conn.mu.Unlock()
		return false, nil
	}
	conn.epoch++
	epoch := conn.epoch
	resumed := conn.connectSeq > 0 && req.ConnectSeq > 0
	old := conn.tr
	conn.tr = nil
	if old != nil {
		_ = old.Close()
	}
	conn.q.requeueSent()
	conn.ctrlQ = nil
	conn.connectSeq = req.ConnectSeq + 1
	conn.peerGlobalSeq = req.GlobalSeq
	conn.features = negotiated
	conn.security = grant.Security
	if req.Flags&wire.FlagLossy != 0 {
		conn.policy.Lossy = true
	}
	if conn.state != StateConnecting {
		conn.setStateLocked(StateConnecting, "accepting session")
	}
	mySeq := conn.q.inSeq
	replyCseq := conn.connectSeq
	lossy := conn.policy.Lossy
	conn.mu.Unlock()

	seqFollows := resumed && negotiated.Contains(wire.FeatureReconnectSeq)
	reply := &wire.ConnectReply{
		Tag:             wire.TagReady,
		Features:        negotiated,
		GlobalSeq:       a.globalSeq.Current(),
		ConnectSeq:      replyCseq,
		ProtocolVersion: req.ProtocolVersion,
		AuthorizerReply: grant.Reply,
	}
	if lossy {
		reply.Flags |= wire.FlagLossy
	}
	if seqFollows {
		reply.Flags |= wire.FlagSeqFollows
	}
	if err := a.reply(t, req, reply); err != nil {
		conn.fault(epoch, err)
		return false, err
	}

	var peerSeq uint64
	if seqFollows {
		if err := a.codec.WriteSeq(t, mySeq); err != nil {
			conn.fault(epoch, err)
			return false, err
		}
		tag, err := a.codec.ReadTag(t)
		if err != nil {
			conn.fault(epoch, err)
			return false, err
		}
		if tag != wire.TagSeq {
			err := fmt.Errorf("%w: %s, want SEQ", wire.ErrBadTag, tag)
			conn.fault(epoch, err)
			return false, err
		}
		if peerSeq, err = a.codec.ReadSeq(t); err != nil {
			conn.fault(epoch, err)
			return false, err
		}
	}

	conn.mu.Lock()
	if conn.epoch != epoch || conn.state == StateClosed {
		conn.mu.Unlock()
		return false, nil
	}
	if seqFollows {
		conn.q.discardSentUpTo(peerSeq)
	}
	conn.startSessionLocked(t)
	conn.mu.Unlock()
	return true, nil
}

// newServerConn builds the accepting-side connection for a fresh
// session.
func (a *Acceptor) newServerConn(req *wire.ConnectRequest) *Connection {
	pol := a.policyFor(req.HostType)
	pol.Server = true
	return newConnection(a.cfg, pol, Options{
		PeerType:  req.HostType,
		PeerAddr:  req.SrcAddr,
		Registry:  a.registry,
		GlobalSeq: a.globalSeq,
		Clock:     a.clk,
		Logger:    a.logger,
	})
}

func (a *Acceptor) reply(t transport.Transport, req *wire.ConnectRequest, reply *wire.ConnectReply) error {
	if err := a.codec.WriteConnectReply(t, reply); err != nil {
		return err
	}
	a.logHandshake(log.DirectionOut, reply.Tag, req)
	return nil
}

func (a *Acceptor) logHandshake(dir log.Direction, tag wire.Tag, req *wire.ConnectRequest) {
	a.logger.Log(log.Event{
		Timestamp:  a.clk.Now(),
		Direction:  dir,
		Layer:      log.LayerConnection,
		Category:   log.CategoryHandshake,
		LocalRole:  log.RoleServer,
		RemoteAddr: req.SrcAddr,
		Entity:     a.cfg.Entity,
		Handshake: &log.HandshakeEvent{
			Tag:        uint8(tag),
			GlobalSeq:  req.GlobalSeq,
			ConnectSeq: req.ConnectSeq,
		},
	})
}
