package mfa

import (
	"fmt"
	"log/slog"
)

const redacted = "[REDACTED]"

// Secret holds key material or a bearer token. Every default representation
// (fmt verbs, slog, JSON, text) is redacted; the raw value is only reachable
// through Bytes and Reveal.
type Secret struct {
	b []byte
}

// NewSecret takes ownership of b.
func NewSecret(b []byte) Secret {
	return Secret{b: b}
}

// Bytes returns the underlying bytes without copying.
func (s Secret) Bytes() []byte { return s.b }

// Reveal returns the value as a string, for handing a token to its owner once.
func (s Secret) Reveal() string { return string(s.b) }

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool { return len(s.b) == 0 }

// Wipe zeroes the underlying bytes.
func (s *Secret) Wipe() {
	if s == nil {
		return
	}
	clear(s.b)
	s.b = nil
}

func (Secret) String() string   { return redacted }
func (Secret) GoString() string { return redacted }

// Format keeps %x, %q and friends from printing the raw bytes.
func (Secret) Format(f fmt.State, _ rune) {
	_, _ = f.Write([]byte(redacted))
}

func (Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

func (Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

func (Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
