package auth

import (
	"errors"
	"fmt"
)

// Authorization protocol identifiers carried in the connect request.
const (
	// ProtoNone performs no authorization. The connect request carries
	// no credential and the session is unsigned.
	ProtoNone uint32 = 0

	// ProtoSharedSecret authorizes with a sealed shared-secret
	// credential and derives a per-session signing key.
	ProtoSharedSecret uint32 = 2
)

// Authorization errors.
var (
	// ErrBadAuthorizer indicates the peer rejected or could not verify
	// the credential. The connecting side may retry once with a fresh
	// credential before giving up.
	ErrBadAuthorizer = errors.New("bad authorizer")

	// ErrUnknownProtocol indicates an authorization protocol the
	// verifier does not support.
	ErrUnknownProtocol = errors.New("unknown auth protocol")

	// ErrStaleAuthorizer indicates a credential outside the accepted
	// freshness window.
	ErrStaleAuthorizer = fmt.Errorf("%w: stale credential", ErrBadAuthorizer)

	// ErrBadReply indicates the server's authorizer reply failed
	// verification on the connecting side.
	ErrBadReply = errors.New("bad authorizer reply")
)

// Authorizer builds the credential a connecting client presents, and
// verifies the reply the server returns. Implementations may cache
// material between Build calls; Invalidate discards it so the next
// Build produces a fresh credential.
type Authorizer interface {
	// Proto returns the authorization protocol identifier.
	Proto() uint32

	// Build produces the credential blob for a connect request.
	Build() ([]byte, error)

	// VerifyReply checks the server's authorizer reply and, on
	// success, returns the session security for the connection. A nil
	// SessionSecurity means the session is unsigned.
	VerifyReply(reply []byte) (SessionSecurity, error)

	// Invalidate discards cached credential material after a
	// rejection.
	Invalidate()
}

// Grant is the result of a successful server-side verification.
type Grant struct {
	// Reply is the opaque authorizer reply returned to the client.
	Reply []byte

	// Security signs and verifies message frames on this session. Nil
	// means the session is unsigned.
	Security SessionSecurity
}

// AuthServer verifies credentials on the accepting side.
type AuthServer interface {
	// Verify checks a credential blob for the given protocol. It
	// returns ErrBadAuthorizer (or a wrap of it) on rejection and
	// ErrUnknownProtocol for protocols it does not handle.
	Verify(proto uint32, blob []byte) (*Grant, error)
}

// SessionSecurity signs and verifies message frames. It satisfies the
// framing codec's Signer interface.
type SessionSecurity interface {
	// Sign returns the 64-bit signature over data.
	Sign(data []byte) (uint64, error)

	// Verify checks sig against data.
	Verify(data []byte, sig uint64) error
}

// NoneAuthorizer implements Proto() == ProtoNone: no credential, no
// session security.
type NoneAuthorizer struct{}

func (NoneAuthorizer) Proto() uint32                               { return ProtoNone }
func (NoneAuthorizer) Build() ([]byte, error)                      { return nil, nil }
func (NoneAuthorizer) VerifyReply([]byte) (SessionSecurity, error) { return nil, nil }
func (NoneAuthorizer) Invalidate()                                 {}

// NoneServer accepts ProtoNone connects and rejects everything else.
type NoneServer struct{}

func (NoneServer) Verify(proto uint32, blob []byte) (*Grant, error) {
	if proto != ProtoNone {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, proto)
	}
	return &Grant{}, nil
}
