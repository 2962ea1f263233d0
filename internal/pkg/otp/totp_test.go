package otp

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // RFC 6238 reference computation
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// referenceCode is an independent RFC 4226 truncation used to cross-check
// the verifier.
func referenceCode(secret []byte, counter uint64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], counter)

	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", bin%1_000_000)
}

func TestVerifier_CurrentCode(t *testing.T) {
	t.Parallel()

	rfcSecret := []byte("12345678901234567890")
	demo, err := DecodeSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret []byte
		unix   int64
		want   string
	}{
		{name: "golden vector at step boundary 56666666", secret: demo, unix: 1700000000, want: "324550"},
		{name: "golden vector previous step", secret: demo, unix: 1699999970, want: "822542"},
		{name: "golden vector next step", secret: demo, unix: 1700000030, want: "367665"},
		{name: "rfc6238 t=59", secret: rfcSecret, unix: 59, want: "287082"},
		{name: "rfc6238 t=1111111109", secret: rfcSecret, unix: 1111111109, want: "081804"},
		{name: "rfc6238 t=1111111111", secret: rfcSecret, unix: 1111111111, want: "050471"},
		{name: "rfc6238 t=1234567890", secret: rfcSecret, unix: 1234567890, want: "005924"},
		{name: "rfc6238 t=2000000000", secret: rfcSecret, unix: 2000000000, want: "279037"},
		{name: "rfc6238 t=20000000000", secret: rfcSecret, unix: 20000000000, want: "353130"},
	}

	v := NewVerifier(1)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			at := time.Unix(tt.unix, 0)
			got, err := v.CurrentCode(tt.secret, at)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, referenceCode(tt.secret, Counter(at)), got)
		})
	}
}

func TestVerifier_CurrentCode_MatchesPquernaTOTP(t *testing.T) {
	t.Parallel()

	secret, err := GenerateSecret()
	require.NoError(t, err)
	defer secret.Wipe()

	v := NewVerifier(1)
	start := time.Unix(1700000000, 0)
	for i := range 20 {
		at := start.Add(time.Duration(i*17) * time.Second)

		got, err := v.CurrentCode(secret.Bytes(), at)
		require.NoError(t, err)

		want, err := totp.GenerateCodeCustom(EncodeSecret(secret.Bytes()), at, totp.ValidateOpts{
			Period:    Period,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		require.NoError(t, err)
		assert.Equal(t, want, got, "at %d", at.Unix())
	}
}

func TestCounter(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(56666666), Counter(time.Unix(1700000000, 0)))
	assert.Equal(t, uint64(56666666), Counter(time.Unix(1699999980, 0)))
	assert.Equal(t, uint64(56666665), Counter(time.Unix(1699999979, 0)))
	assert.Equal(t, uint64(0), Counter(time.Unix(29, 0)))
}

func TestVerifier_Match(t *testing.T) {
	t.Parallel()

	secret, err := DecodeSecret("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)

	base := time.Unix(1700000000, 0) // counter 56666666
	v := NewVerifier(1)
	code, err := v.CurrentCode(secret, base)
	require.NoError(t, err)

	tests := []struct {
		name        string
		code        string
		at          time.Time
		wantOK      bool
		wantCounter uint64
	}{
		{name: "same instant", code: code, at: base, wantOK: true, wantCounter: 56666666},
		{name: "31 seconds later is one step ahead", code: code, at: base.Add(31 * time.Second), wantOK: true, wantCounter: 56666666},
		{name: "last second of next step", code: code, at: base.Add(39 * time.Second), wantOK: true, wantCounter: 56666666},
		{name: "two steps later is rejected", code: code, at: base.Add(40 * time.Second), wantOK: false},
		{name: "first second of step", code: code, at: base.Add(-20 * time.Second), wantOK: true, wantCounter: 56666666},
		{name: "one step earlier accepted", code: code, at: base.Add(-50 * time.Second), wantOK: true, wantCounter: 56666666},
		{name: "two steps earlier rejected", code: code, at: base.Add(-51 * time.Second), wantOK: false},
		{name: "previous step code matches its own counter", code: "822542", at: base, wantOK: true, wantCounter: 56666665},
		{name: "next step code matches its own counter", code: "367665", at: base, wantOK: true, wantCounter: 56666667},
		{name: "wrong code", code: "000000", at: base, wantOK: false},
		{name: "too short", code: "32455", at: base, wantOK: false},
		{name: "too long", code: "3245501", at: base, wantOK: false},
		{name: "non digit", code: "32455a", at: base, wantOK: false},
		{name: "unicode digit", code: "32455٠", at: base, wantOK: false},
		{name: "empty", code: "", at: base, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			counter, ok := v.Match(secret, tt.code, tt.at)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantCounter, counter)
			}
			assert.Equal(t, tt.wantOK, v.Verify(secret, tt.code, tt.at))
		})
	}
}

func TestVerifier_Verify_RoundTripForRandomSecrets(t *testing.T) {
	t.Parallel()

	v := NewVerifier(0)
	at := time.Unix(1_234_567_890, 0)
	for range 50 {
		secret, err := GenerateSecret()
		require.NoError(t, err)

		code, err := v.CurrentCode(secret.Bytes(), at)
		require.NoError(t, err)
		assert.True(t, v.Verify(secret.Bytes(), code, at))
		assert.False(t, v.Verify(secret.Bytes(), code, at.Add(2*Period*time.Second)))
	}
}

func TestVerifier_WiderWindow(t *testing.T) {
	t.Parallel()

	secret := []byte("12345678901234567890")
	at := time.Unix(1111111109, 0)

	v := NewVerifier(2)
	_, ok := v.Match(secret, "081804", at.Add(2*Period*time.Second))
	assert.True(t, ok)
	_, ok = v.Match(secret, "081804", at.Add(3*Period*time.Second))
	assert.False(t, ok)
}

func TestVerifier_Match_NearEpoch(t *testing.T) {
	t.Parallel()

	secret := []byte("12345678901234567890")
	_, ok := NewVerifier(1).Match(secret, "287082", time.Unix(5, 0))
	assert.True(t, ok)
}

func TestIsCodeFormat(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCodeFormat("000000"))
	assert.True(t, IsCodeFormat("123456"))
	assert.False(t, IsCodeFormat("12345"))
	assert.False(t, IsCodeFormat("12 456"))
	assert.False(t, IsCodeFormat("１２３４５６"))
}

func TestVerifier_ZeroWindowAcceptsCurrentStepOnly(t *testing.T) {
	t.Parallel()

	secret := []byte("12345678901234567890")
	at := time.Unix(59, 0)
	wide := NewVerifier(1)
	exact := NewVerifier(0)

	code, err := wide.CurrentCode(secret, at)
	require.NoError(t, err)
	prev, err := wide.CurrentCode(secret, at.Add(-Period*time.Second))
	require.NoError(t, err)

	assert.True(t, exact.Verify(secret, code, at))
	assert.False(t, exact.Verify(secret, prev, at))
	assert.True(t, wide.Verify(secret, prev, at))
}
