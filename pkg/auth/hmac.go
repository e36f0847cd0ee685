package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// hmacSecurity signs frames with HMAC-SHA256 truncated to 64 bits.
type hmacSecurity struct {
	key []byte
}

// NewSessionSecurity creates a SessionSecurity signing with the given
// session key.
func NewSessionSecurity(key []byte) SessionSecurity {
	k := make([]byte, len(key))
	copy(k, key)
	return &hmacSecurity{key: k}
}

func (s *hmacSecurity) Sign(data []byte) (uint64, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return binary.BigEndian.Uint64(mac.Sum(nil)[:8]), nil
}

func (s *hmacSecurity) Verify(data []byte, sig uint64) error {
	want, _ := s.Sign(data)
	var a, b [8]byte
	binary.BigEndian.PutUint64(a[:], want)
	binary.BigEndian.PutUint64(b[:], sig)
	if !hmac.Equal(a[:], b[:]) {
		return errors.New("signature mismatch")
	}
	return nil
}
