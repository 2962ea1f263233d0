package mfa

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRing(t *testing.T, active uint8, ids ...uint8) *KeyRing {
	t.Helper()

	keys := make(map[uint8][]byte, len(ids))
	for _, id := range ids {
		keys[id] = bytes.Repeat([]byte{id}, aesKeyLen)
	}

	ring, err := NewKeyRing(active, keys)
	require.NoError(t, err)
	return ring
}

func TestAESGCMEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor(testRing(t, 1, 1))
	scope := Scope{UserID: 42, Purpose: PurposeOTPSeed}

	ct, err := enc.Encrypt([]byte("seed material"), scope)
	require.NoError(t, err)
	assert.NotContains(t, string(ct), "seed material")

	pt, err := enc.Decrypt(ct, scope)
	require.NoError(t, err)
	assert.Equal(t, []byte("seed material"), pt)

	ct2, err := enc.Encrypt([]byte("seed material"), scope)
	require.NoError(t, err)
	assert.NotEqual(t, ct, ct2, "nonce must differ per call")
}

func TestAESGCMEncryptor_ScopeBinding(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor(testRing(t, 1, 1))
	ct, err := enc.Encrypt([]byte("seed"), Scope{UserID: 1, Purpose: PurposeOTPSeed})
	require.NoError(t, err)

	tests := []struct {
		name  string
		scope Scope
	}{
		{name: "other user", scope: Scope{UserID: 2, Purpose: PurposeOTPSeed}},
		{name: "other purpose", scope: Scope{UserID: 1, Purpose: PurposeEnrollmentSeed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := enc.Decrypt(ct, tt.scope)
			assert.ErrorIs(t, err, ErrDecryptFailed)
		})
	}
}

func TestAESGCMEncryptor_KeyRotation(t *testing.T) {
	t.Parallel()

	scope := Scope{UserID: 7, Purpose: PurposeOTPSeed}
	old := NewAESGCMEncryptor(testRing(t, 1, 1))
	ct, err := old.Encrypt([]byte("seed"), scope)
	require.NoError(t, err)

	rotated := NewAESGCMEncryptor(testRing(t, 2, 1, 2))
	pt, err := rotated.Decrypt(ct, scope)
	require.NoError(t, err)
	assert.Equal(t, []byte("seed"), pt)

	ct2, err := rotated.Encrypt([]byte("seed"), scope)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), ct2[2])

	_, err = old.Decrypt(ct2, scope)
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestAESGCMEncryptor_Errors(t *testing.T) {
	t.Parallel()

	enc := NewAESGCMEncryptor(testRing(t, 1, 1))
	scope := Scope{UserID: 1, Purpose: PurposeOTPSeed}

	_, err := enc.Encrypt(nil, scope)
	assert.ErrorIs(t, err, ErrPlaintextEmpty)

	_, err = enc.Decrypt([]byte{0, 2, 1}, scope)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	ct, err := enc.Encrypt([]byte("seed"), scope)
	require.NoError(t, err)

	tampered := append([]byte(nil), ct...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = enc.Decrypt(tampered, scope)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	wrongVersion := append([]byte(nil), ct...)
	wrongVersion[1] = 9
	_, err = enc.Decrypt(wrongVersion, scope)
	assert.ErrorIs(t, err, ErrUnsupportedCiphertextVersion)

	var nilEnc *AESGCMEncryptor
	_, err = nilEnc.Encrypt([]byte("x"), scope)
	assert.ErrorIs(t, err, ErrEncryptorNotConfigured)
}

func TestNewKeyRing(t *testing.T) {
	t.Parallel()

	_, err := NewKeyRing(1, map[uint8][]byte{2: make([]byte, aesKeyLen)})
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = NewKeyRing(1, map[uint8][]byte{1: make([]byte, 16)})
	assert.ErrorIs(t, err, ErrInvalidKeyLength)

	src := bytes.Repeat([]byte{1}, aesKeyLen)
	ring, err := NewKeyRing(1, map[uint8][]byte{1: src})
	require.NoError(t, err)
	src[0] = 0xff

	k, err := ring.Key(1)
	require.NoError(t, err)
	assert.Equal(t, byte(1), k[0])
}
