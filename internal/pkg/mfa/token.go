package mfa

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// TokenSize is the number of random bytes behind an opaque token.
const TokenSize = 32

var tokenEncoding = base64.RawURLEncoding

// TokenGenerator issues opaque high-entropy bearer tokens.
type TokenGenerator interface {
	Generate() (Secret, error)
}

// RandomToken issues base64url tokens read from crypto/rand.
type RandomToken struct {
	r io.Reader
}

// NewRandomToken returns a token generator backed by crypto/rand.
func NewRandomToken() *RandomToken {
	return &RandomToken{r: rand.Reader}
}

// Generate returns a new token of TokenSize random bytes, base64url encoded.
func (t *RandomToken) Generate() (Secret, error) {
	raw := make([]byte, TokenSize)
	defer clear(raw)

	if _, err := io.ReadFull(t.r, raw); err != nil {
		return Secret{}, fmt.Errorf("mfa: token entropy: %w", err)
	}

	out := make([]byte, tokenEncoding.EncodedLen(len(raw)))
	tokenEncoding.Encode(out, raw)

	return NewSecret(out), nil
}

// IsTokenFormat reports whether s looks like a token issued by RandomToken.
func IsTokenFormat(s string) bool {
	if len(s) != tokenEncoding.EncodedLen(TokenSize) {
		return false
	}
	_, err := tokenEncoding.DecodeString(s)
	return err == nil
}
