// Package auth provides the authorization and session-security
// collaborators used during connection establishment.
//
// An Authorizer builds the opaque credential blob a client attaches
// to its connect request; an AuthServer verifies that blob on the
// accepting side and issues a session grant. When a grant carries a
// session key, both sides derive a SessionSecurity that signs every
// message frame on the session.
//
// The package ships a shared-secret reference implementation: the
// credential payload is CBOR, sealed with ChaCha20-Poly1305 under a
// key derived from the shared secret, and the per-session signing key
// is derived with HKDF from the nonces both sides contributed.
package auth
