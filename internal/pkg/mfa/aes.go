package mfa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Ciphertext layout:
//
//	[0..1]  uint16 format version
//	[2]     key id
//	[3..14] 12-byte nonce
//	[15..]  gcm.Seal output (ciphertext + tag)
const (
	aesGCMVersion uint16 = 2
	headerLen            = 2 + 1 + gcmNonceSize
	gcmNonceSize         = 12
	aesKeyLen            = 32
)

var (
	// ErrEncryptorNotConfigured indicates a missing key provider.
	ErrEncryptorNotConfigured = errors.New("mfa: encryptor not configured")
	// ErrPlaintextEmpty indicates an empty plaintext input.
	ErrPlaintextEmpty = errors.New("mfa: plaintext is empty")
	// ErrInvalidKeyLength indicates a key that is not 32 bytes.
	ErrInvalidKeyLength = errors.New("mfa: invalid key length")
	// ErrUnknownKey indicates a key id missing from the provider.
	ErrUnknownKey = errors.New("mfa: unknown key id")
	// ErrCiphertextTooShort indicates a truncated ciphertext.
	ErrCiphertextTooShort = errors.New("mfa: ciphertext too short")
	// ErrUnsupportedCiphertextVersion indicates an unsupported ciphertext version.
	ErrUnsupportedCiphertextVersion = errors.New("mfa: unsupported ciphertext version")
	// ErrDecryptFailed covers wrong key, wrong scope and tampering alike.
	ErrDecryptFailed = errors.New("mfa: decrypt failed")
)

// AESGCMEncryptor implements Encryptor with AES-256-GCM.
type AESGCMEncryptor struct {
	keys  KeyProvider
	nonce io.Reader
}

// NewAESGCMEncryptor constructs an AES-GCM encryptor.
func NewAESGCMEncryptor(keys KeyProvider) *AESGCMEncryptor {
	return &AESGCMEncryptor{keys: keys, nonce: rand.Reader}
}

// Encrypt seals plaintext under the active key, binding it to scope.
func (e *AESGCMEncryptor) Encrypt(plaintext []byte, scope Scope) ([]byte, error) {
	if e == nil || e.keys == nil {
		return nil, ErrEncryptorNotConfigured
	}
	if len(plaintext) == 0 {
		return nil, ErrPlaintextEmpty
	}

	keyID := e.keys.ActiveKeyID()
	gcm, err := e.aead(keyID)
	if err != nil {
		return nil, err
	}

	out := make([]byte, headerLen, headerLen+len(plaintext)+gcm.Overhead())
	binary.BigEndian.PutUint16(out[0:2], aesGCMVersion)
	out[2] = keyID

	nonce := out[3:headerLen]
	if _, err := io.ReadFull(e.nonce, nonce); err != nil {
		return nil, fmt.Errorf("mfa: nonce generation failed: %w", err)
	}

	return gcm.Seal(out, nonce, plaintext, scope.aad()), nil
}

// Decrypt opens a ciphertext produced by Encrypt with the same scope.
func (e *AESGCMEncryptor) Decrypt(ciphertext []byte, scope Scope) ([]byte, error) {
	if e == nil || e.keys == nil {
		return nil, ErrEncryptorNotConfigured
	}
	if len(ciphertext) <= headerLen {
		return nil, ErrCiphertextTooShort
	}

	if v := binary.BigEndian.Uint16(ciphertext[0:2]); v != aesGCMVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCiphertextVersion, v)
	}

	gcm, err := e.aead(ciphertext[2])
	if err != nil {
		return nil, err
	}

	plain, err := gcm.Open(nil, ciphertext[3:headerLen], ciphertext[headerLen:], scope.aad())
	if err != nil {
		return nil, ErrDecryptFailed
	}

	return plain, nil
}

func (e *AESGCMEncryptor) aead(keyID uint8) (cipher.AEAD, error) {
	key, err := e.keys.Key(keyID)
	if err != nil {
		return nil, err
	}
	defer clear(key)

	if len(key) != aesKeyLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidKeyLength, len(key), aesKeyLen)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("mfa: aes init failed: %w", err)
	}

	return cipher.NewGCMWithNonceSize(block, gcmNonceSize)
}

// KeyRing is an in-memory KeyProvider loaded from configuration.
type KeyRing struct {
	active uint8
	keys   map[uint8][]byte
}

// NewKeyRing validates keys and returns a ring sealing with active.
func NewKeyRing(active uint8, keys map[uint8][]byte) (*KeyRing, error) {
	if _, ok := keys[active]; !ok {
		return nil, fmt.Errorf("%w: active %d", ErrUnknownKey, active)
	}

	ring := &KeyRing{active: active, keys: make(map[uint8][]byte, len(keys))}
	for id, k := range keys {
		if len(k) != aesKeyLen {
			return nil, fmt.Errorf("%w: key %d has %d bytes", ErrInvalidKeyLength, id, len(k))
		}
		ring.keys[id] = append([]byte(nil), k...)
	}

	return ring, nil
}

// ActiveKeyID returns the id used for new ciphertexts.
func (r *KeyRing) ActiveKeyID() uint8 { return r.active }

// Key returns a copy of the key with the given id.
func (r *KeyRing) Key(id uint8) ([]byte, error) {
	k, ok := r.keys[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKey, id)
	}
	return append([]byte(nil), k...), nil
}
