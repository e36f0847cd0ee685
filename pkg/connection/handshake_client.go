package connection

import (
	"fmt"

	"github.com/msgr-protocol/msgr-go/pkg/auth"
	"github.com/msgr-protocol/msgr-go/pkg/log"
	"github.com/msgr-protocol/msgr-go/pkg/transport"
	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// hsResult classifies the outcome of one handshake run.
type hsResult int

const (
	// hsEstablished: the session is open and its goroutines started.
	hsEstablished hsResult = iota

	// hsRetry: transient failure, redial after backoff.
	hsRetry

	// hsWait: stand down, the peer's own attempt supersedes ours.
	hsWait

	// hsFatal: permanent rejection, give up.
	hsFatal
)

// clientHandshake runs the connecting side of the handshake on t:
// banner exchange, then connect attempts until the server accepts,
// redirects or rejects. A single transport may carry several attempts.
func (c *Connection) clientHandshake(t transport.Transport) (hsResult, error) {
	if err := c.codec.WriteBanner(t); err != nil {
		return hsRetry, err
	}
	if err := c.codec.ReadBanner(t); err != nil {
		if wireErr(err) {
			return hsFatal, err
		}
		return hsRetry, err
	}

	c.mu.Lock()
	c.localAddr = t.LocalAddr()
	c.mu.Unlock()

	for attempt := uint32(1); ; attempt++ {
		c.mu.Lock()
		if c.state != StateConnecting {
			c.mu.Unlock()
			return hsWait, nil
		}
		cseq := c.connectSeq
		c.mu.Unlock()

		req := &wire.ConnectRequest{
			SrcAddr:         t.LocalAddr(),
			DstAddr:         c.peerAddr,
			Features:        c.cfg.Features,
			HostType:        c.cfg.HostType,
			GlobalSeq:       c.globalSeq.Next(),
			ConnectSeq:      cseq,
			ProtocolVersion: wire.ProtocolVersion(c.cfg.HostType, c.peerType),
			AuthProto:       c.authorizer.Proto(),
		}
		if c.policy.Lossy {
			req.Flags |= wire.FlagLossy
		}
		blob, err := c.authorizer.Build()
		if err != nil {
			return hsFatal, fmt.Errorf("building authorizer: %w", err)
		}
		req.Authorizer = blob

		if err := c.codec.WriteConnectRequest(t, req); err != nil {
			return hsRetry, err
		}
		c.logHandshake(log.DirectionOut, wire.TagConnect, req.GlobalSeq, req.ConnectSeq, attempt)

		tag, err := c.codec.ReadTag(t)
		if err != nil {
			return hsRetry, err
		}
		reply, err := c.codec.ReadConnectReply(t, tag)
		if err != nil {
			if wireErr(err) {
				return hsFatal, err
			}
			return hsRetry, err
		}
		c.logHandshake(log.DirectionIn, reply.Tag, reply.GlobalSeq, reply.ConnectSeq, attempt)

		switch reply.Tag {
		case wire.TagReady:
			return c.handleReady(t, req, reply)

		case wire.TagRetrySession:
			// The server remembers a newer session; the retry must
			// supersede it, so resend with one past its connect_seq.
			c.mu.Lock()
			c.connectSeq = reply.ConnectSeq + 1
			c.mu.Unlock()

		case wire.TagRetryGlobal:
			c.globalSeq.FastForward(reply.GlobalSeq)

		case wire.TagResetSession:
			c.mu.Lock()
			c.resetSessionLocked()
			c.mu.Unlock()

		case wire.TagBadAuthorizer:
			c.authorizer.Invalidate()
			c.mu.Lock()
			retried := c.gotBadAuth
			c.gotBadAuth = true
			c.mu.Unlock()
			if retried {
				return hsFatal, fmt.Errorf("%w: rejected twice by %s", auth.ErrBadAuthorizer, c.peerAddr)
			}

		case wire.TagWait:
			return hsWait, nil

		case wire.TagFeatures:
			return hsFatal, fmt.Errorf("%w: peer supports %#x, required %#x",
				ErrFeatureMismatch, uint64(reply.Features), uint64(c.cfg.RequiredFeatures))

		case wire.TagBadProtoVersion:
			return hsFatal, fmt.Errorf("%w: peer speaks %d, sent %d",
				ErrProtocolMismatch, reply.ProtocolVersion, req.ProtocolVersion)

		default:
			return hsFatal, fmt.Errorf("%w: %s in connect reply", wire.ErrBadTag, reply.Tag)
		}
	}
}

// handleReady completes a READY reply: feature check, authorizer reply
// verification, optional sequence exchange, then session start.
func (c *Connection) handleReady(t transport.Transport, req *wire.ConnectRequest, reply *wire.ConnectReply) (hsResult, error) {
	negotiated := req.Features & reply.Features
	if !negotiated.Contains(c.cfg.RequiredFeatures) {
		return hsFatal, fmt.Errorf("%w: negotiated %#x, required %#x",
			ErrFeatureMismatch, uint64(negotiated), uint64(c.cfg.RequiredFeatures))
	}

	security, err := c.authorizer.VerifyReply(reply.AuthorizerReply)
	if err != nil {
		return hsFatal, fmt.Errorf("verifying authorizer reply from %s: %w", c.peerAddr, err)
	}

	seqFollows := reply.Flags&wire.FlagSeqFollows != 0
	var peerSeq uint64
	if seqFollows {
		// The server reports the last message it received before the
		// interruption; everything up to it must not be resent.
		tag, err := c.codec.ReadTag(t)
		if err != nil {
			return hsRetry, err
		}
		if tag != wire.TagSeq {
			return hsFatal, fmt.Errorf("%w: %s, want SEQ", wire.ErrBadTag, tag)
		}
		if peerSeq, err = c.codec.ReadSeq(t); err != nil {
			return hsRetry, err
		}
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return hsWait, nil
	}
	c.features = negotiated
	c.security = security
	c.connectSeq = req.ConnectSeq + 1
	c.peerGlobalSeq = reply.GlobalSeq
	c.gotBadAuth = false
	if seqFollows {
		c.q.discardSentUpTo(peerSeq)
	}
	mySeq := c.q.inSeq
	c.mu.Unlock()

	if seqFollows {
		if err := c.codec.WriteSeq(t, mySeq); err != nil {
			return hsRetry, err
		}
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return hsWait, nil
	}
	c.startSessionLocked(t)
	c.mu.Unlock()
	return hsEstablished, nil
}

func (c *Connection) logHandshake(dir log.Direction, tag wire.Tag, gseq, cseq, attempt uint32) {
	c.logger.Log(log.Event{
		Timestamp:    c.clk.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerConnection,
		Category:     log.CategoryHandshake,
		LocalRole:    c.role(),
		RemoteAddr:   c.peerAddr,
		Entity:       c.cfg.Entity,
		Handshake: &log.HandshakeEvent{
			Tag:        uint8(tag),
			GlobalSeq:  gseq,
			ConnectSeq: cseq,
			Attempt:    int(attempt),
		},
	})
}
