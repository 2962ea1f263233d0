package hash

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HMACSHA256 hex-encodes HMAC-SHA256 digests under a fixed key.
type HMACSHA256 struct {
	key []byte
}

func NewHMACSHA256(secret string) *HMACSHA256 {
	return &HMACSHA256{key: []byte(secret)}
}

// Derive returns a hasher whose key is expanded from this one with
// HKDF-SHA256, using purpose as the info label.
func (s *HMACSHA256) Derive(purpose string) *HMACSHA256 {
	sub := &HMACSHA256{key: make([]byte, sha256.Size)}
	// HKDF-SHA256 can produce up to 255*32 bytes; 32 never fails.
	_, _ = io.ReadFull(hkdf.New(sha256.New, s.key, nil, []byte(purpose)), sub.key)
	return sub
}

func (s *HMACSHA256) Hash(str string) ([]byte, error) {
	return s.digest(str), nil
}

func (s *HMACSHA256) Verify(hashed, str string) bool {
	return hmac.Equal([]byte(hashed), s.digest(str))
}

func (s *HMACSHA256) digest(str string) []byte {
	mac := hmac.New(sha256.New, s.key)
	_, _ = io.WriteString(mac, str)
	return hex.AppendEncode(nil, mac.Sum(nil))
}
