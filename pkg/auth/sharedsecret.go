package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// DefaultFreshnessWindow bounds the accepted age of a credential,
// covering clock skew in either direction.
const DefaultFreshnessWindow = 30 * time.Second

const nonceSize = 16

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
		Time:        cbor.TimeUnix,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder: %v", err))
	}
}

// credentialPayload is the sealed body of a shared-secret credential.
type credentialPayload struct {
	Entity    string `cbor:"1,keyasint"`
	HostType  uint32 `cbor:"2,keyasint"`
	Nonce     []byte `cbor:"3,keyasint"`
	Timestamp int64  `cbor:"4,keyasint"`
}

// replyPayload is the sealed body of the authorizer reply.
type replyPayload struct {
	ServerNonce []byte `cbor:"1,keyasint"`
	Proof       []byte `cbor:"2,keyasint"`
}

// sealKey derives the AEAD key protecting credential and reply blobs.
func sealKey(secret []byte) ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("msgr credential seal"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive seal key: %w", err)
	}
	return key, nil
}

// sessionKey derives the per-session signing key from the nonces both
// sides contributed.
func sessionKey(secret, clientNonce, serverNonce []byte) ([]byte, error) {
	salt := append(append([]byte{}, clientNonce...), serverNonce...)
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, salt, []byte("msgr session key"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}
	return key, nil
}

func seal(secret, plaintext []byte) ([]byte, error) {
	key, err := sealKey(secret)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func unseal(secret, blob []byte) ([]byte, error) {
	key, err := sealKey(secret)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < aead.NonceSize() {
		return nil, fmt.Errorf("%w: sealed blob too short", ErrBadAuthorizer)
	}
	plaintext, err := aead.Open(nil, blob[:aead.NonceSize()], blob[aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAuthorizer, err)
	}
	return plaintext, nil
}

// proof computes the server's possession proof over the client nonce.
func proof(key, clientNonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(clientNonce)
	return mac.Sum(nil)
}

// SharedSecretAuthorizer builds ProtoSharedSecret credentials for a
// named entity. Safe for concurrent use.
type SharedSecretAuthorizer struct {
	entity   string
	hostType uint32
	secret   []byte
	clock    clock.Clock

	mu    sync.Mutex
	nonce []byte
}

// NewSharedSecretAuthorizer creates an authorizer for entity using the
// given pre-shared secret.
func NewSharedSecretAuthorizer(entity string, hostType uint32, secret []byte) *SharedSecretAuthorizer {
	return &SharedSecretAuthorizer{
		entity:   entity,
		hostType: hostType,
		secret:   append([]byte{}, secret...),
		clock:    clock.New(),
	}
}

// SetClock replaces the time source. Intended for tests.
func (a *SharedSecretAuthorizer) SetClock(c clock.Clock) { a.clock = c }

// Proto returns ProtoSharedSecret.
func (a *SharedSecretAuthorizer) Proto() uint32 { return ProtoSharedSecret }

// Build produces a fresh sealed credential. The nonce is retained so
// VerifyReply can bind the reply to this credential.
func (a *SharedSecretAuthorizer) Build() ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	payload, err := encMode.Marshal(&credentialPayload{
		Entity:    a.entity,
		HostType:  a.hostType,
		Nonce:     nonce,
		Timestamp: a.clock.Now().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credential: %w", err)
	}

	blob, err := seal(a.secret, payload)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.nonce = nonce
	a.mu.Unlock()
	return blob, nil
}

// VerifyReply unseals the server's reply, checks its possession proof
// and returns the session security for the connection.
func (a *SharedSecretAuthorizer) VerifyReply(reply []byte) (SessionSecurity, error) {
	a.mu.Lock()
	nonce := a.nonce
	a.mu.Unlock()
	if nonce == nil {
		return nil, fmt.Errorf("%w: no credential outstanding", ErrBadReply)
	}

	plaintext, err := unseal(a.secret, reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
	}
	var p replyPayload
	if err := decMode.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadReply, err)
	}

	key, err := sessionKey(a.secret, nonce, p.ServerNonce)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(p.Proof, proof(key, nonce)) {
		return nil, fmt.Errorf("%w: proof mismatch", ErrBadReply)
	}
	return NewSessionSecurity(key), nil
}

// Invalidate discards the outstanding nonce so the next Build starts
// over.
func (a *SharedSecretAuthorizer) Invalidate() {
	a.mu.Lock()
	a.nonce = nil
	a.mu.Unlock()
}

// SharedSecretServer verifies ProtoSharedSecret credentials.
type SharedSecretServer struct {
	secret []byte
	window time.Duration
	clock  clock.Clock

	// Authorized filters entities. Nil accepts every entity the secret
	// admits.
	Authorized func(entity string, hostType uint32) bool
}

// NewSharedSecretServer creates a verifier for the given pre-shared
// secret using the default freshness window.
func NewSharedSecretServer(secret []byte) *SharedSecretServer {
	return &SharedSecretServer{
		secret: append([]byte{}, secret...),
		window: DefaultFreshnessWindow,
		clock:  clock.New(),
	}
}

// SetClock replaces the time source. Intended for tests.
func (s *SharedSecretServer) SetClock(c clock.Clock) { s.clock = c }

// SetFreshnessWindow adjusts the accepted credential age.
func (s *SharedSecretServer) SetFreshnessWindow(d time.Duration) { s.window = d }

// Verify checks a sealed credential and issues the session grant.
func (s *SharedSecretServer) Verify(protoID uint32, blob []byte) (*Grant, error) {
	if protoID != ProtoSharedSecret {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProtocol, protoID)
	}

	plaintext, err := unseal(s.secret, blob)
	if err != nil {
		return nil, err
	}
	var cred credentialPayload
	if err := decMode.Unmarshal(plaintext, &cred); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAuthorizer, err)
	}
	if len(cred.Nonce) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce", ErrBadAuthorizer)
	}

	age := s.clock.Now().Sub(time.Unix(0, cred.Timestamp))
	if age > s.window || age < -s.window {
		return nil, ErrStaleAuthorizer
	}

	if s.Authorized != nil && !s.Authorized(cred.Entity, cred.HostType) {
		return nil, fmt.Errorf("%w: entity %q not authorized", ErrBadAuthorizer, cred.Entity)
	}

	serverNonce := make([]byte, nonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, err
	}
	key, err := sessionKey(s.secret, cred.Nonce, serverNonce)
	if err != nil {
		return nil, err
	}

	payload, err := encMode.Marshal(&replyPayload{
		ServerNonce: serverNonce,
		Proof:       proof(key, cred.Nonce),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode reply: %w", err)
	}
	reply, err := seal(s.secret, payload)
	if err != nil {
		return nil, err
	}

	return &Grant{Reply: reply, Security: NewSessionSecurity(key)}, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Authorizer = (*SharedSecretAuthorizer)(nil)
	_ Authorizer = NoneAuthorizer{}
	_ AuthServer = (*SharedSecretServer)(nil)
	_ AuthServer = NoneServer{}
)
