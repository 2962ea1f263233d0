package otp

import (
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shandysiswandi/twofa/internal/pkg/mfa"
)

// SecretSize is the seed length in bytes (160 bits, RFC 4226 recommendation).
const SecretSize = 20

var (
	// ErrMalformedSecret is returned when a Base32 secret cannot be decoded.
	ErrMalformedSecret = errors.New("otp: malformed secret")
	// ErrEntropy is returned when the random source cannot produce a seed.
	ErrEntropy = errors.New("otp: entropy source unavailable")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// entropy is swapped in tests to simulate a failing random source.
var entropy io.Reader = rand.Reader

// GenerateSecret returns a fresh random seed of SecretSize bytes.
func GenerateSecret() (mfa.Secret, error) {
	buf := make([]byte, SecretSize)
	if _, err := io.ReadFull(entropy, buf); err != nil {
		return mfa.Secret{}, fmt.Errorf("%w: %w", ErrEntropy, err)
	}

	return mfa.NewSecret(buf), nil
}

// EncodeSecret renders raw seed bytes as unpadded uppercase Base32.
func EncodeSecret(raw []byte) string {
	return b32.EncodeToString(raw)
}

// DecodeSecret parses a Base32 secret as typed by a user or stored by an
// authenticator. Spaces, lowercase letters and trailing padding are accepted.
func DecodeSecret(encoded string) ([]byte, error) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(encoded), " ", ""))
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedSecret)
	}

	// Unpadded Base32 never ends on 1, 3 or 6 characters of a group; the
	// decoder would drop them silently.
	switch len(s) % 8 {
	case 1, 3, 6:
		return nil, fmt.Errorf("%w: invalid length %d", ErrMalformedSecret, len(s))
	}

	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSecret, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty secret", ErrMalformedSecret)
	}

	return raw, nil
}
