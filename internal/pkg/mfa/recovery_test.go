package mfa

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reRecoveryCode = regexp.MustCompile(`^\d{4}-\d{4}$`)

func TestRecoveryCode_Generate(t *testing.T) {
	t.Parallel()

	codes, err := NewRecoveryCode().Generate(DefaultRecoveryCodeCount)
	require.NoError(t, err)
	require.Len(t, codes, DefaultRecoveryCodeCount)

	seen := map[string]struct{}{}
	for _, c := range codes {
		assert.Regexp(t, reRecoveryCode, c)
		seen[c] = struct{}{}
	}
	assert.Len(t, seen, DefaultRecoveryCodeCount)
}

func TestRecoveryCode_Generate_RedrawsDuplicates(t *testing.T) {
	t.Parallel()

	// Zero bytes make rand.Int return 0, so every draw collides until the
	// reader switches to a distinct pattern.
	r := &patternReader{chunks: [][]byte{make([]byte, 64), make([]byte, 64), bytes.Repeat([]byte{0x01}, 64)}}
	rc := &RecoveryCode{r: r}

	codes, err := rc.Generate(2)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "0000-0000", codes[0])
	assert.NotEqual(t, codes[0], codes[1])
}

func TestRecoveryCode_Generate_InvalidCount(t *testing.T) {
	t.Parallel()

	_, err := NewRecoveryCode().Generate(0)
	assert.ErrorIs(t, err, ErrRecoveryCodeCount)
}

func TestNormalizeRecoveryCode(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"1234-5678":     "12345678",
		" 1234 5678 ":   "12345678",
		"12345678":      "12345678",
		"abcd-efgh":     "ABCDEFGH",
		"1234-\t5678\n": "12345678",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeRecoveryCode(in), in)
	}

	assert.True(t, IsRecoveryCodeFormat("12345678"))
	assert.False(t, IsRecoveryCodeFormat("1234567"))
	assert.False(t, IsRecoveryCodeFormat("ABCDEFGH"))
}

// patternReader serves each chunk once, then repeats the last one.
type patternReader struct {
	chunks [][]byte
	pos    int
}

func (p *patternReader) Read(b []byte) (int, error) {
	chunk := p.chunks[min(p.pos, len(p.chunks)-1)]
	p.pos++
	return copy(b, chunk), nil
}
