package otp

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

const (
	// Period is the TOTP time step in seconds.
	Period = 30
	// Digits is the number of digits in a code.
	Digits = 6
	// DefaultWindow is the number of steps accepted on each side of now.
	DefaultWindow uint = 1
)

// Verifier computes and checks TOTP codes (RFC 6238, SHA1, 6 digits, 30s).
type Verifier struct {
	window uint
}

// NewVerifier returns a Verifier accepting codes up to window steps before
// or after the current one. Zero accepts the current step only.
func NewVerifier(window uint) *Verifier {
	return &Verifier{window: window}
}

// Counter returns the time step index for t.
func Counter(t time.Time) uint64 {
	return uint64(t.Unix()) / Period
}

// IsCodeFormat reports whether code is exactly six ASCII digits.
func IsCodeFormat(code string) bool {
	if len(code) != Digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

// CurrentCode returns the code for the time step containing at.
func (v *Verifier) CurrentCode(secret []byte, at time.Time) (string, error) {
	return codeAt(secret, Counter(at))
}

// Verify reports whether code is valid for secret around at.
func (v *Verifier) Verify(secret []byte, code string, at time.Time) bool {
	_, ok := v.Match(secret, code, at)
	return ok
}

// Match checks code against every step in the window and returns the step
// that matched. All candidates are compared so timing does not depend on
// which one matched.
func (v *Verifier) Match(secret []byte, code string, at time.Time) (uint64, bool) {
	if !IsCodeFormat(code) || len(secret) == 0 {
		return 0, false
	}

	now := Counter(at)
	w := uint64(v.window)

	var matched uint64
	found := 0
	for c := now - min(w, now); c <= now+w; c++ {
		expected, err := codeAt(secret, c)
		if err != nil {
			return 0, false
		}

		eq := subtle.ConstantTimeCompare([]byte(expected), []byte(code))
		if eq == 1 && found == 0 {
			matched = c
		}
		found |= eq
	}

	return matched, found == 1
}

func codeAt(secret []byte, counter uint64) (string, error) {
	return hotp.GenerateCodeCustom(EncodeSecret(secret), counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
