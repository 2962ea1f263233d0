package mfa

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"strings"
)

// DefaultRecoveryCodeCount is the size of a backup code set.
const DefaultRecoveryCodeCount = 10

// RecoveryCodeLength is the number of digits in a backup code.
const RecoveryCodeLength = 8

// ErrRecoveryCodeCount is returned for a non-positive set size.
var ErrRecoveryCodeCount = errors.New("mfa: recovery code count must be positive")

// RecoveryCodeGenerator generates sets of single-use backup codes.
type RecoveryCodeGenerator interface {
	// Generate returns count unique codes formatted NNNN-NNNN.
	Generate(count int) ([]string, error)
}

// RecoveryCode draws digit codes from crypto/rand.
type RecoveryCode struct {
	r io.Reader
}

// NewRecoveryCode returns a generator backed by crypto/rand.
func NewRecoveryCode() *RecoveryCode {
	return &RecoveryCode{r: rand.Reader}
}

// Generate produces count unique codes. Duplicates are redrawn.
func (rc *RecoveryCode) Generate(count int) ([]string, error) {
	if count <= 0 {
		return nil, ErrRecoveryCodeCount
	}

	out := make([]string, 0, count)
	seen := make(map[string]struct{}, count)

	for len(out) < count {
		code, err := rc.draw()
		if err != nil {
			return nil, err
		}

		if _, ok := seen[code]; ok {
			continue
		}

		seen[code] = struct{}{}
		out = append(out, code)
	}

	return out, nil
}

var recoveryCodeSpace = big.NewInt(100_000_000)

func (rc *RecoveryCode) draw() (string, error) {
	n, err := rand.Int(rc.r, recoveryCodeSpace)
	if err != nil {
		return "", err
	}

	digits := n.Text(10)
	digits = strings.Repeat("0", RecoveryCodeLength-len(digits)) + digits

	return digits[:4] + "-" + digits[4:], nil
}

// NormalizeRecoveryCode strips separators and whitespace and upper-cases the
// remainder, so "1234 5678" and "1234-5678" hash the same.
func NormalizeRecoveryCode(code string) string {
	var sb strings.Builder
	sb.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// IsRecoveryCodeFormat reports whether a normalized code has the expected shape.
func IsRecoveryCodeFormat(normalized string) bool {
	if len(normalized) != RecoveryCodeLength {
		return false
	}
	for i := 0; i < len(normalized); i++ {
		if normalized[i] < '0' || normalized[i] > '9' {
			return false
		}
	}
	return true
}
